package postgres

import (
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/jobs"
	loandomain "github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/loan"
	negotiationdomain "github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/negotiation"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/http/handlers"
)

var (
	_ loandomain.Repository        = (*LoanRepository)(nil)
	_ negotiationdomain.Repository = (*NegotiationRepository)(nil)
	_ negotiationdomain.LoanFinder = (*LoanRepository)(nil)
	_ jobs.OutboxRepository        = (*OutboxRepository)(nil)
	_ handlers.OutboxStats         = (*OutboxRepository)(nil)
)
