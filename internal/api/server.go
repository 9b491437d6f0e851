package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/casks-mutters/zk-bytecode-stability/internal/chain"
	"github.com/casks-mutters/zk-bytecode-stability/internal/config"
	stberrors "github.com/casks-mutters/zk-bytecode-stability/internal/errors"
	"github.com/casks-mutters/zk-bytecode-stability/internal/history"
	"github.com/casks-mutters/zk-bytecode-stability/internal/sampler"
	"github.com/casks-mutters/zk-bytecode-stability/internal/validation"
)

// CheckRequest 稳定性检查请求
type CheckRequest struct {
	Address   string `json:"address" binding:"required"`
	FromBlock uint64 `json:"from_block"`
	ToBlock   uint64 `json:"to_block" binding:"required"`
	Step      uint64 `json:"step"`
}

// Server API服务器
// 通过HTTP触发检查并查询历史报告
type Server struct {
	config  *config.Config
	logger  *logrus.Logger
	store   *history.Store
	server  *http.Server
	port    int
}

// NewServer 创建API服务器
func NewServer(cfg *config.Config, store *history.Store, logger *logrus.Logger, port int) *Server {
	return &Server{
		config: cfg,
		logger: logger,
		store:  store,
		port:   port,
	}
}

// Start 启动API服务器（阻塞直到服务器退出）
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.POST("/check", s.handleCheck)
		v1.GET("/reports", s.handleListReports)
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: router,
	}

	s.logger.Infof("API服务器启动，端口: %d", s.port)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API服务器启动失败: %w", err)
	}
	return nil
}

// Stop 停止API服务器
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("停止API服务器...")
	return s.server.Shutdown(ctx)
}

// handleHealth 健康检查
func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.store.Count()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"node":         s.config.Node.Name,
		"report_count": count,
		"time":         time.Now().Format(time.RFC3339),
	})
}

// handleCheck 同步执行一次稳定性检查
func (s *Server) handleCheck(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("请求参数无效: %v", err)})
		return
	}

	address, err := validation.ValidateAddress(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Step == 0 {
		req.Step = s.config.Sampler.DefaultStep
	}
	if err := validation.ValidateRange(req.FromBlock, req.ToBlock, req.Step); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Reader的生命周期与单次检查绑定
	reader, err := chain.NewEthReader(chain.ReaderConfig{
		URL:            s.config.Node.URL,
		RequestTimeout: s.config.Node.RequestTimeout(),
	}, s.logger)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer reader.Close()

	smp := sampler.New(reader, s.config.Retry.ToPolicy(), s.logger)
	report, err := smp.Run(c.Request.Context(), sampler.Params{
		Address:   address,
		FromBlock: req.FromBlock,
		ToBlock:   req.ToBlock,
		Step:      req.Step,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case stberrors.IsKind(err, stberrors.KindInvalidRange):
			status = http.StatusBadRequest
		case stberrors.IsKind(err, stberrors.KindInsufficientData):
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.SaveReport(report); err != nil {
		s.logger.Errorf("保存报告到历史存储失败: %v", err)
	}

	c.JSON(http.StatusOK, report)
}

// handleListReports 查询历史报告
func (s *Server) handleListReports(c *gin.Context) {
	address := c.Query("address")

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil && v > 0 {
			limit = v
		}
	}

	reports, err := s.store.ListReports(address, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(reports),
		"reports": reports,
	})
}
