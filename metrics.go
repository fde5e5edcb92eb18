package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v4/cpu"
)

const cpuSampleInterval = 15 * time.Second

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minitwit_http_requests_total",
		Help: "Total number of processed HTTP requests",
	}, []string{"route", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "minitwit_http_request_duration_seconds",
		Help:    "Request duration distribution for HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minitwit_messages_total",
		Help: "Total number of successfully posted messages",
	}, []string{"source"})

	followsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minitwit_follows_total",
		Help: "Total number of successful follow requests",
	}, []string{"source"})

	unfollowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minitwit_unfollows_total",
		Help: "Total number of successful unfollow requests",
	}, []string{"source"})

	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minitwit_registrations_total",
		Help: "Total number of registered users",
	}, []string{"source"})

	loginsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minitwit_logins_total",
		Help: "Total number of successful logins",
	})

	cpuLoad = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minitwit_cpu_load_percent",
		Help: "Host CPU utilization in percent",
	})
)

// recordCPULoad samples host CPU usage since the previous sample.
func recordCPULoad() {
	usage, err := cpu.Percent(0, false)
	if err != nil || len(usage) == 0 {
		logger.WithError(err).Warn("Failed to sample CPU load")
		return
	}
	cpuLoad.Set(usage[0])
}

func watchCPULoad(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		recordCPULoad()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
