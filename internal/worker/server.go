package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"voiceroom-manager/internal/service"
	"voiceroom-manager/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server  *asynq.Server
	log     *logrus.Entry
	reclaim *service.ReclaimService
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(redisOpt asynq.RedisClientOpt, reclaim *service.ReclaimService, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 4, // 清扫任务不需要太高的并发
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).WithError(err).Error("Task processing failed")
			}),
		},
	)

	return &WorkerServer{
		server:  server,
		log:     logEntry,
		reclaim: reclaim,
	}
}

// Start 注册任务处理器并启动 Worker Server。
// 它应该在一个单独的 goroutine 中运行。
func (w *WorkerServer) Start() {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeRoomSweep, NewRoomSweepHandler(w.reclaim))

	w.log.Info("Worker server starting...")
	if err := w.server.Run(mux); err != nil {
		w.log.WithError(err).Error("Worker server stopped with error")
	}
}

// Shutdown 优雅地关闭 Worker Server
func (w *WorkerServer) Shutdown() {
	w.log.Info("Shutting down worker server...")
	w.server.Shutdown()
	w.log.Info("Worker server shut down")
}
