package codegen

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// collisionsTotal — сгенерированные коды, оказавшиеся занятыми.
var collisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sm_session_code_collisions_total",
	Help: "Количество коллизий при генерации кодов сессий.",
})
