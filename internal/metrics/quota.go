package metrics

import "github.com/DukeRupert/quotaledger/internal/domain"

// QuotaConsumed records a unit of quota spent from the given source.
func QuotaConsumed(source domain.QuotaSourceKind) {
	QuotaDecisionsTotal.WithLabelValues(string(source)).Inc()
}

// QuotaDenied records a request rejected for lack of quota.
func QuotaDenied(reason string) {
	QuotaDenialsTotal.WithLabelValues(reason).Inc()
}

// SubscriptionCreated records a new subscription.
func SubscriptionCreated(tier domain.SubscriptionTier, cycle domain.BillingCycle) {
	SubscriptionsCreated.WithLabelValues(string(tier), string(cycle)).Inc()
}

// SubscriptionCanceled records an auto-renew cancellation.
func SubscriptionCanceled() {
	SubscriptionsCanceled.Inc()
}

// PaymentProcessed records a simulated payment outcome.
func PaymentProcessed(success bool) {
	result := "failed"
	if success {
		result = "succeeded"
	}
	PaymentsTotal.WithLabelValues(result).Inc()
}

// AnswerGenerated records a persisted answer.
func AnswerGenerated() {
	AnswersGenerated.Inc()
}
