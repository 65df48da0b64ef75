package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MetaInfo is the deployment shape reported by /v1/meta.
type MetaInfo struct {
	Env             string
	Version         string
	LockBackend     string
	RelayMode       string
	DefaultCurrency string
}

type MetaHandler struct {
	info MetaInfo
}

func NewMetaHandler(info MetaInfo) *MetaHandler {
	return &MetaHandler{info: info}
}

func (h *MetaHandler) GetMeta(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":             "P2P Lending Ledger",
		"version":          h.info.Version,
		"env":              h.info.Env,
		"lock_backend":     h.info.LockBackend,
		"relay_mode":       h.info.RelayMode,
		"default_currency": h.info.DefaultCurrency,
	})
}
