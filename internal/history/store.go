package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/casks-mutters/zk-bytecode-stability/pkg/models"
)

const (
	// DefaultDBPath 默认数据库路径
	DefaultDBPath = "./data/history.db"

	// ReportsBucket 报告存储桶名称
	ReportsBucket = "reports"
)

// Store 报告历史存储
// 每次检查的报告按 地址/开始时间 键持久化，供history子命令和API查询
type Store struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	mu     sync.RWMutex
}

// NewStore 创建报告历史存储
func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开历史数据库失败: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
		dbPath: dbPath,
	}

	if err := store.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	logger.Infof("报告历史存储已初始化，数据库路径: %s", dbPath)
	return store, nil
}

// initDB 初始化数据库结构
func (s *Store) initDB() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(ReportsBucket)); err != nil {
			return fmt.Errorf("创建报告存储桶失败: %w", err)
		}
		return nil
	})
}

// reportKey 生成报告键：地址小写 + 开始时间，按字典序即按时间序
func reportKey(report *models.StabilityReport) []byte {
	return []byte(fmt.Sprintf("%s/%s",
		strings.ToLower(report.Address),
		report.StartedAt.UTC().Format(time.RFC3339Nano)))
}

// SaveReport 持久化一份报告
func (s *Store) SaveReport(report *models.StabilityReport) error {
	if report == nil {
		return fmt.Errorf("报告不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ReportsBucket))
		if bucket == nil {
			return fmt.Errorf("报告存储桶不存在")
		}

		if err := bucket.Put(reportKey(report), data); err != nil {
			return fmt.Errorf("保存报告失败: %w", err)
		}
		return nil
	})
}

// ListReports 按时间倒序列出报告
// address为空时返回所有地址的报告；limit<=0时不限制数量
func (s *Store) ListReports(address string, limit int) ([]*models.StabilityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := strings.ToLower(address)
	var reports []*models.StabilityReport

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ReportsBucket))
		if bucket == nil {
			return nil
		}

		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			if prefix != "" && !strings.HasPrefix(string(k), prefix+"/") {
				continue
			}

			var report models.StabilityReport
			if err := json.Unmarshal(v, &report); err != nil {
				s.logger.Warnf("反序列化历史报告失败 key=%s: %v", string(k), err)
				continue
			}
			reports = append(reports, &report)

			if limit > 0 && len(reports) >= limit {
				break
			}
		}
		return nil
	})

	return reports, err
}

// LastReport 获取某地址最近一次的报告，不存在时返回nil
func (s *Store) LastReport(address string) (*models.StabilityReport, error) {
	reports, err := s.ListReports(address, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return reports[0], nil
}

// Count 统计存储的报告数量
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ReportsBucket))
		if bucket == nil {
			return nil
		}
		count = bucket.Stats().KeyN
		return nil
	})
	return count, err
}

// DBPath 获取数据库路径
func (s *Store) DBPath() string {
	return s.dbPath
}

// Close 关闭存储
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info("关闭报告历史存储")
		return s.db.Close()
	}
	return nil
}
