package config

// Config 引擎核心配置（对外导出）
type Config struct {
	Mode     string `yaml:"mode"`
	HTTPPort int    `yaml:"http_port"`
	Engine   struct {
		MaxConcurrentWorkflows int  `yaml:"max_concurrent_workflows"`
		MaxConcurrentTasks     int  `yaml:"max_concurrent_tasks"`
		DefaultTimeoutSecs     int  `yaml:"default_timeout_secs"`
		EnableRetry            bool `yaml:"enable_retry"`
		MaxRetries             int  `yaml:"max_retries"`
		RetryDelaySecs         int  `yaml:"retry_delay_secs"`
		ResourceWaitSecs       int  `yaml:"resource_wait_secs"`
		EnablePersistence      bool `yaml:"enable_persistence"`
		EnableEvents           bool `yaml:"enable_events"`
	} `yaml:"engine"`
	Resources struct {
		CPUCores        float64 `yaml:"cpu_cores"`
		MemoryMB        int64   `yaml:"memory_mb"`
		GPUDevices      int     `yaml:"gpu_devices"`
		ConcurrentSlots int     `yaml:"concurrent_slots"`
	} `yaml:"resources"`
	Database struct {
		Type     string `yaml:"type"` // sqlite / mysql / postgres
		Path     string `yaml:"path"` // sqlite文件路径
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
	} `yaml:"database"`
	Cluster struct {
		ListenAddr        string `yaml:"listen_addr"`        // 协调器WebSocket监听地址
		CoordinatorURL    string `yaml:"coordinator_url"`    // Worker连接的协调器地址
		HeartbeatInterval int    `yaml:"heartbeat_interval"` // 心跳间隔（毫秒）
		MissThreshold     int    `yaml:"miss_threshold"`     // 判定失联的连续缺失心跳次数
		DispatchWaitSecs  int    `yaml:"dispatch_wait_secs"` // 无可用Worker时的排队上限
	} `yaml:"cluster"`
}
