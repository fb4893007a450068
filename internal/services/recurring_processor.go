package services

import (
	"context"
	"fmt"
	"time"

	"billbook/internal/core"
	"billbook/internal/log"
)

// RecurringStore is the part of the store the processor needs.
type RecurringStore interface {
	RecurringExpenses() []core.RecurringExpense
	AddExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	MarkRecurringExecuted(ctx context.Context, id string, at time.Time) error
}

// RecurringProcessor creates expenses from due recurring templates.
type RecurringProcessor struct {
	store  RecurringStore
	logger *log.Logger
}

func NewRecurringProcessor(store RecurringStore, logger *log.Logger) *RecurringProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	return &RecurringProcessor{store: store, logger: logger.WithComponent(log.ComponentRecurring)}
}

// ProcessDueExpenses creates one expense per due template, dated on the day
// of now, and stamps the template. It returns how many expenses were created.
// A failing template is logged and skipped.
func (p *RecurringProcessor) ProcessDueExpenses(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	templates := p.store.RecurringExpenses()
	processed := 0

	for _, re := range templates {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		due, err := IsDue(re, now)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to check if expense is due",
				log.FieldID, re.ID,
				log.FieldError, err)
			continue
		}
		if !due {
			continue
		}

		created, err := p.store.AddExpense(ctx, core.Expense{
			Date:        core.DateOf(now.UTC()),
			Amount:      re.Amount,
			Currency:    re.Currency,
			Category:    re.Category,
			Description: re.Description,
			ProjectID:   re.ProjectID,
			Status:      core.ExpenseDraft,
		})
		if err != nil && created.ID == "" {
			p.logger.ErrorContext(ctx, "Failed to create expense from recurring template",
				"recurring_id", re.ID,
				"description", re.Description,
				log.FieldError, err)
			continue
		}
		if err != nil {
			// the expense exists in memory, so the template is still stamped
			p.logger.WarnContext(ctx, "Expense created but not persisted",
				"recurring_id", re.ID,
				log.FieldID, created.ID,
				log.FieldError, err)
		}

		if err := p.store.MarkRecurringExecuted(ctx, re.ID, now); err != nil {
			p.logger.ErrorContext(ctx, "Failed to update last execution date",
				"recurring_id", re.ID,
				log.FieldError, err)
		}

		processed++
		p.logger.InfoContext(ctx, "Created expense from recurring template",
			"recurring_id", re.ID,
			log.FieldID, created.ID,
			log.FieldAmount, re.Amount.String(),
			log.FieldCurrency, string(re.Currency),
			"frequency", re.Every)
	}

	p.logger.InfoContext(ctx, "Recurring expense processing complete",
		"processed", processed,
		"total_checked", len(templates))

	return processed, nil
}
