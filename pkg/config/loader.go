package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Default 返回默认配置（对外导出）
func Default() *Config {
	cfg := &Config{
		Mode:     "dev",
		HTTPPort: 8080,
	}
	cfg.Engine.MaxConcurrentWorkflows = 10
	cfg.Engine.MaxConcurrentTasks = 10
	cfg.Engine.DefaultTimeoutSecs = 300
	cfg.Engine.EnableRetry = true
	cfg.Engine.MaxRetries = 3
	cfg.Engine.RetryDelaySecs = 5
	cfg.Engine.ResourceWaitSecs = 60
	cfg.Engine.EnableEvents = true
	cfg.Resources.CPUCores = 8
	cfg.Resources.MemoryMB = 16384
	cfg.Resources.GPUDevices = 0
	cfg.Resources.ConcurrentSlots = 32
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = "workflow-engine.db"
	cfg.Cluster.HeartbeatInterval = 1000
	cfg.Cluster.MissThreshold = 5
	cfg.Cluster.DispatchWaitSecs = 30
	return cfg
}

// Load 加载配置文件（对外导出）
// 文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
