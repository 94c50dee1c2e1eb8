package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/pulse/internal/cache"
	"github.com/d60-Lab/pulse/internal/service"
)

// Handler 聚合全部 HTTP 处理器的依赖
type Handler struct {
	userSvc     service.UserService
	relSvc      service.RelationshipService
	postSvc     service.PostService
	timelineSvc service.TimelineService
	timeline    *cache.TimelineCache
	fanout      *service.FanoutWorker
	metrics     *MetricsDeps
	maxPageSize int
}

func New(
	userSvc service.UserService,
	relSvc service.RelationshipService,
	postSvc service.PostService,
	timelineSvc service.TimelineService,
	timeline *cache.TimelineCache,
	fanout *service.FanoutWorker,
	metrics *MetricsDeps,
	maxPageSize int,
) *Handler {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &Handler{
		userSvc:     userSvc,
		relSvc:      relSvc,
		postSvc:     postSvc,
		timelineSvc: timelineSvc,
		timeline:    timeline,
		fanout:      fanout,
		metrics:     metrics,
		maxPageSize: maxPageSize,
	}
}

// bindErrMessage 把 validator 的错误拍平成一行可读信息
func bindErrMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag()))
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}
