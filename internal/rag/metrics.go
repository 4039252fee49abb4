package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "siterag_rag_queries_total",
	Help: "Chat queries processed, by outcome.",
}, []string{"outcome"})
