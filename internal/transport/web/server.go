package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/decision"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/judge"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/learn"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/logger"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/pkg/format"
	"github.com/Ragnar-no-sleep/CYNIC-sub004/internal/store"
)

// 中文说明：
// 只读 JSON 接口：健康检查、运行状态、判断/决策/课程历史与学习器视图。
// 页面渲染不在本服务范围内，接口消费方自行绘制。

const (
	defaultListLimit = 50
	maxListLimit     = 500
	shutdownTimeout  = 5 * time.Second
)

// ServerConfig 构造参数
type ServerConfig struct {
	Addr      string
	Env       string
	Engine    *judge.Engine
	Selector  *decision.Selector
	Evaluator *learn.Evaluator
	Journal   store.JournalReader // 可为 nil：后端不支持流水回查
}

// Server 只读 HTTP 接口
type Server struct {
	cfg     ServerConfig
	httpSrv *http.Server
	started time.Time
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("http 监听地址未配置")
	}
	if cfg.Engine == nil || cfg.Selector == nil || cfg.Evaluator == nil {
		return nil, errors.New("web 依赖不完整")
	}
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{cfg: cfg, started: time.Now()}
	router := gin.New()
	router.Use(gin.Recovery())
	s.routes(router)
	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: router}
	return s, nil
}

func (s *Server) Addr() string { return s.cfg.Addr }

// Run 启动监听并阻塞到 ctx 取消。
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP 关闭异常: %v", err)
	}
	return nil
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)
	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/judgments", s.handleJudgments)
		api.GET("/decisions", s.handleDecisions)
		api.GET("/lessons", s.handleLessons)
		api.GET("/learner", s.handleLearner)
		api.GET("/journal/decisions", s.handleJournalDecisions)
		api.GET("/journal/lessons", s.handleJournalLessons)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	m := s.cfg.Evaluator.MetricsSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"env":              s.cfg.Env,
		"uptime":           format.Duration(time.Since(s.started).Milliseconds()),
		"uptime_seconds":   int(time.Since(s.started).Seconds()),
		"metrics":          m,
		"confidence_floor": s.cfg.Evaluator.ConfidenceFloor(),
		"pending_results":  s.cfg.Evaluator.PendingCount(),
		"max_confidence":   judge.MaxConfidence,
	})
}

func (s *Server) handleJudgments(c *gin.Context) {
	hist := s.cfg.Engine.History()
	c.JSON(http.StatusOK, gin.H{"judgments": tail(hist, listLimit(c))})
}

func (s *Server) handleDecisions(c *gin.Context) {
	hist := s.cfg.Selector.History()
	c.JSON(http.StatusOK, gin.H{"decisions": tail(hist, listLimit(c))})
}

func (s *Server) handleLessons(c *gin.Context) {
	lessons := s.cfg.Evaluator.Lessons()
	c.JSON(http.StatusOK, gin.H{"lessons": tail(lessons, listLimit(c))})
}

func (s *Server) handleLearner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"dimension_adjustments": s.cfg.Evaluator.AdjustmentsSnapshot(),
		"action_reliability":    s.cfg.Evaluator.ReliabilityView(),
		"metrics":               s.cfg.Evaluator.MetricsSnapshot(),
		"confidence_floor":      s.cfg.Evaluator.ConfidenceFloor(),
	})
}

func (s *Server) handleJournalDecisions(c *gin.Context) {
	if s.cfg.Journal == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "当前存储后端不支持流水回查"})
		return
	}
	recs, err := s.cfg.Journal.RecentDecisions(c.Request.Context(), listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": recs})
}

func (s *Server) handleJournalLessons(c *gin.Context) {
	if s.cfg.Journal == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "当前存储后端不支持流水回查"})
		return
	}
	recs, err := s.cfg.Journal.RecentLessons(c.Request.Context(), listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lessons": recs})
}

func listLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

// tail 取切片末尾 n 个（历史快照按从旧到新排列）。
func tail[T any](in []T, n int) []T {
	if len(in) <= n {
		return in
	}
	return in[len(in)-n:]
}
