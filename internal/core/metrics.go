package core

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pictureOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gopicture_picture_operations_total",
		Help: "Picture operations by operation and outcome.",
	},
	[]string{"operation", "result"},
)

func recordOperation(operation string, err error) {
	result := "success"
	var e *Error
	if errors.As(err, &e) {
		result = string(e.Kind)
	} else if err != nil {
		result = "error"
	}
	pictureOperations.WithLabelValues(operation, result).Inc()
}
