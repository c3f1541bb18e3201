package engine

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronExpression Cron表达式无效（对外导出）
// 定义类错误，不会进入调度
var ErrInvalidCronExpression = errors.New("无效的Cron表达式")

const defaultTickInterval = time.Second

// CronJob 一条定时调度规则（对外导出）
type CronJob struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Expr       string    `json:"expr"`
	Enabled    bool      `json:"enabled"`
	NextFire   time.Time `json:"next_fire"`
	LastFire   time.Time `json:"last_fire,omitempty"`
	RunCount   int       `json:"run_count"`

	schedule cron.Schedule
}

// CronScheduler 定时调度器（对外导出）
// 5字段标准Cron表达式（分 时 日 月 周），支持 * 、范围、列表与步进。
// 轮询比较当前时间与各任务的下次触发时间；错过的触发点不补发，
// 只在下一次轮询触发一次
type CronScheduler struct {
	mu       sync.RWMutex
	parser   cron.Parser
	jobs     map[string]*CronJob
	submit   func(workflowID string) (string, error)
	now      func() time.Time
	interval time.Duration
	stop     chan struct{}
	running  bool
}

// NewCronScheduler 创建定时调度器（对外导出）
// submit: 触发时提交运行的回调，返回运行ID
func NewCronScheduler(submit func(workflowID string) (string, error)) *CronScheduler {
	return &CronScheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		jobs:     make(map[string]*CronJob),
		submit:   submit,
		now:      time.Now,
		interval: defaultTickInterval,
	}
}

// Schedule 注册定时调度规则（对外导出）
// 下次触发时间严格晚于注册时刻
func (cs *CronScheduler) Schedule(jobID, workflowID, expr string) (*CronJob, error) {
	schedule, err := cs.parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCronExpression, expr, err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, exists := cs.jobs[jobID]; exists {
		return nil, fmt.Errorf("调度任务 %s 已存在", jobID)
	}
	job := &CronJob{
		ID:         jobID,
		WorkflowID: workflowID,
		Expr:       expr,
		Enabled:    true,
		NextFire:   schedule.Next(cs.now()),
		schedule:   schedule,
	}
	cs.jobs[jobID] = job
	log.Printf("🕐 [Cron调度器] 已注册: Job=%s, Workflow=%s, Expr=%q, 下次触发=%s",
		jobID, workflowID, expr, job.NextFire.Format(time.RFC3339))
	return job, nil
}

// Unschedule 注销定时调度规则（对外导出）
// 已在运行中的实例不受影响
func (cs *CronScheduler) Unschedule(jobID string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, exists := cs.jobs[jobID]; !exists {
		return fmt.Errorf("调度任务 %s 不存在", jobID)
	}
	delete(cs.jobs, jobID)
	log.Printf("🕐 [Cron调度器] 已注销: Job=%s", jobID)
	return nil
}

// SetEnabled 启用或暂停调度规则（对外导出）
func (cs *CronScheduler) SetEnabled(jobID string, enabled bool) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	job, exists := cs.jobs[jobID]
	if !exists {
		return fmt.Errorf("调度任务 %s 不存在", jobID)
	}
	job.Enabled = enabled
	if enabled {
		// 暂停期间错过的触发点不补发
		job.NextFire = job.schedule.Next(cs.now())
	}
	return nil
}

// Job 查询单条调度规则（对外导出）
func (cs *CronScheduler) Job(jobID string) (*CronJob, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	job, ok := cs.jobs[jobID]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// Jobs 列出全部调度规则（对外导出）
func (cs *CronScheduler) Jobs() []*CronJob {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	jobs := make([]*CronJob, 0, len(cs.jobs))
	for _, job := range cs.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

// Poll 检查并触发所有到期的调度任务（对外导出）
// 返回本次触发的任务ID。触发后下次触发时间从当前时刻重算，
// 同一触发点不会重复触发
func (cs *CronScheduler) Poll(now time.Time) []string {
	cs.mu.Lock()
	var due []*CronJob
	for _, job := range cs.jobs {
		if job.Enabled && !now.Before(job.NextFire) {
			due = append(due, job)
		}
	}
	for _, job := range due {
		job.LastFire = now
		job.RunCount++
		job.NextFire = job.schedule.Next(now)
	}
	cs.mu.Unlock()

	var fired []string
	for _, job := range due {
		fired = append(fired, job.ID)
		log.Printf("🕐 [Cron调度器] 触发: Job=%s, Workflow=%s, 第%d次", job.ID, job.WorkflowID, job.RunCount)
		if _, err := cs.submit(job.WorkflowID); err != nil {
			log.Printf("⚠️ [Cron调度器] 提交运行失败: Job=%s, err=%v", job.ID, err)
		}
	}
	return fired
}

// Start 启动轮询循环（对外导出）
func (cs *CronScheduler) Start() {
	cs.mu.Lock()
	if cs.running {
		cs.mu.Unlock()
		return
	}
	cs.running = true
	cs.stop = make(chan struct{})
	stop := cs.stop
	cs.mu.Unlock()

	go func() {
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cs.Poll(cs.now())
			case <-stop:
				return
			}
		}
	}()
	log.Println("✅ Cron调度器已启动")
}

// Stop 停止轮询循环（对外导出）
func (cs *CronScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.running {
		return
	}
	cs.running = false
	close(cs.stop)
	log.Println("✅ Cron调度器已停止")
}
