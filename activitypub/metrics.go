package activitypub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var activitiesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedinbox_activities_processed_total",
	Help: "Inbound activities dispatched to a handler",
}, []string{"type"})

var activitiesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedinbox_activities_rejected_total",
	Help: "Inbound activities declined by a handler",
}, []string{"type", "reason"})

var dereferences = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedinbox_dereference_total",
	Help: "Remote object fetches by outcome",
}, []string{"outcome"})

var deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedinbox_deliveries_total",
	Help: "Outbound deliveries by outcome",
}, []string{"outcome"})

var forwarded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fedinbox_forwarded_total",
	Help: "Activities forwarded to secondary inboxes",
})
