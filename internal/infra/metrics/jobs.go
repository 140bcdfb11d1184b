package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(workerTasksTotal) }

var workerTasksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "worker_tasks_total",
		Help: "Worker pool tasks by outcome.",
	},
	[]string{"result"}, // 'done', 'failed', 'rejected'
)

func IncWorkerTask(res string) {
	workerTasksTotal.WithLabelValues(norm(res)).Inc()
}
