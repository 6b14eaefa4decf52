// Package config loads the configuration surface spec §6 enumerates:
// proxy.*, proxyNN.*, metastore.*, recovery.*, misc.*, data_distribution.*,
// background_write.*, zmq_interface.*, staging.*, retry.*, network.*,
// data_integrity.*, failure_detection.*, event.*. Every recognized
// option falls back to its documented default when absent from the file
// (spec §6: "any one missing falls back to its default").
//
// Grounded on the teacher's modules/uplodconfig.go for a typed, grouped
// config struct, enriched with github.com/spf13/viper (also used by the
// pack's storj-storj and dittofs examples) for the generic
// file/section/default lookup the teacher's own fixed struct does not
// provide.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/nexoedge-go/proxy/placement"
	"github.com/nexoedge-go/proxy/workers"
)

// ProxyEndpoint is one `proxyNN.{ip, coord_port}` declaration (spec §6).
type ProxyEndpoint struct {
	IP        string
	CoordPort int
}

// StorageClassFile is one `{coding, n, k, f, max_chunk_size, default}`
// declaration a storage class file contributes (spec §6, §3 "Storage
// class").
type StorageClassFile struct {
	Name         string
	Coding       string
	N, K, F      int
	MaxChunkSize int64
	Default      bool
}

// Config is the fully-resolved configuration surface, grouped the way
// spec §6 groups its dotted keys.
type Config struct {
	Proxy struct {
		Num                int
		NamespaceID         byte
		Interface           string
		StorageClassPath    string
		StorageClasses      []StorageClassFile
		Endpoints           map[int]ProxyEndpoint
	}

	Metastore struct {
		Type string
		IP   string
		Port int
	}

	Recovery struct {
		TriggerEnabled        bool
		TriggerStartInterval  time.Duration
		ScanInterval          time.Duration
		ScanChunkInterval     time.Duration
		ScanChunkBatchSize    int
		BatchSize             int
		ChunkScanSamplingPolicy workers.SamplingPolicy
		ChunkScanSamplingRate   float64
	}

	Misc struct {
		NumWorkers            int
		ZMQThread             int
		RepairAtProxy         bool
		RepairUsingCAR        bool
		OverwriteFiles        bool
		ReuseDataConnection   bool
		LivenessCacheTime     time.Duration
		JournalCheckInterval  time.Duration
		AgentList             []string
	}

	DataDistribution struct {
		Policy      placement.Policy
		NearIPRanges []string
	}

	BackgroundWrite struct {
		WriteRedundancyInBackground bool
		AckRedundancyInBackground   bool
		NumBackgroundChunkWorker    int
		BackgroundTaskCheckInterval time.Duration
	}

	ZMQInterface struct {
		NumWorkers int
		Port       int
	}

	Staging struct {
		Enabled               bool
		URL                   string
		AutocleanPolicy       string
		AutocleanScanInterval time.Duration
		AutocleanNumDaysExpire int
		BgwritePolicy         string
		BgwriteScanInterval   time.Duration
		BgwriteScheduledTime  string
	}

	Retry struct {
		Num      int
		Interval time.Duration
	}

	Network struct {
		ListenAllIPs  bool
		TCPKeepAlive  time.Duration
		TCPBufferSize int
	}

	DataIntegrity struct {
		VerifyChunkChecksum bool
	}

	FailureDetection struct {
		Timeout time.Duration
	}

	Event struct {
		EventProbeTimeout time.Duration
	}
}

// samplingPolicyFromString maps the recovery.chunk_scan_sampling_policy
// string to its workers.SamplingPolicy value (spec §4.5 table), falling
// back to NoSampling for an unrecognized or absent value.
func samplingPolicyFromString(s string) workers.SamplingPolicy {
	switch s {
	case "chunk":
		return workers.SamplingChunkLevel
	case "stripe":
		return workers.SamplingStripeLevel
	case "file":
		return workers.SamplingFileLevel
	case "container":
		return workers.SamplingContainerLevel
	default:
		return workers.SamplingNone
	}
}

func placementPolicyFromString(s string) placement.Policy {
	switch s {
	case "round_robin":
		return placement.RoundRobin
	case "least_used":
		return placement.LeastUsed
	default:
		return placement.Static
	}
}

// setDefaults populates v with every recognized key's documented
// default, so Load never needs to special-case a missing key (spec §6
// "falls back to its default").
func setDefaults(v *viper.Viper) {
	v.SetDefault("proxy.num", 1)
	v.SetDefault("proxy.namespace_id", 0)
	v.SetDefault("proxy.interface", "0.0.0.0:9000")
	v.SetDefault("proxy.storage_class.path", "")

	v.SetDefault("metastore.type", "memstore")
	v.SetDefault("metastore.ip", "127.0.0.1")
	v.SetDefault("metastore.port", 9100)

	v.SetDefault("recovery.trigger_enabled", true)
	v.SetDefault("recovery.trigger_start_interval", "1m")
	v.SetDefault("recovery.scan_interval", "10m")
	v.SetDefault("recovery.scan_chunk_interval", "30m")
	v.SetDefault("recovery.scan_chunk_batch_size", 256)
	v.SetDefault("recovery.batch_size", 32)
	v.SetDefault("recovery.chunk_scan_sampling_policy", "none")
	v.SetDefault("recovery.chunk_scan_sampling_rate", 1.0)

	v.SetDefault("misc.num_workers", 8)
	v.SetDefault("misc.zmq_thread", 4)
	v.SetDefault("misc.repair_at_proxy", false)
	v.SetDefault("misc.repair_using_car", false)
	v.SetDefault("misc.overwrite_files", true)
	v.SetDefault("misc.reuse_data_connection", false)
	v.SetDefault("misc.liveness_cache_time", "5s")
	v.SetDefault("misc.journal_check_interval", "1m")
	v.SetDefault("misc.agent_list", []string{})

	v.SetDefault("data_distribution.policy", "static")
	v.SetDefault("data_distribution.near_ip_ranges", []string{})

	v.SetDefault("background_write.write_redundancy_in_background", false)
	v.SetDefault("background_write.ack_redundancy_in_background", false)
	v.SetDefault("background_write.num_background_chunk_worker", 4)
	v.SetDefault("background_write.background_task_check_interval", "30s")

	v.SetDefault("zmq_interface.num_workers", 4)
	v.SetDefault("zmq_interface.port", 9000)

	v.SetDefault("staging.enabled", false)
	v.SetDefault("staging.url", "")
	v.SetDefault("staging.autoclean_policy", "none")
	v.SetDefault("staging.autoclean_scan_interval", "1h")
	v.SetDefault("staging.autoclean_num_days_expire", 7)
	v.SetDefault("staging.bgwrite_policy", "none")
	v.SetDefault("staging.bgwrite_scan_interval", "1m")
	v.SetDefault("staging.bgwrite_scheduled_time", "")

	v.SetDefault("retry.num", 3)
	v.SetDefault("retry.interval", "100ms")

	v.SetDefault("network.listen_all_ips", false)
	v.SetDefault("network.tcp_keep_alive", "30s")
	v.SetDefault("network.tcp_buffer_size", 1<<20)

	v.SetDefault("data_integrity.verify_chunk_checksum", true)

	v.SetDefault("failure_detection.timeout", "5s")

	v.SetDefault("event.event_probe_timeout", "2s")
}

// Load reads path (any format viper supports: YAML, TOML, JSON, INI) and
// returns the resolved Config, every unset key taking its default.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, err
		}
	}

	var cfg Config
	cfg.Proxy.Num = v.GetInt("proxy.num")
	cfg.Proxy.NamespaceID = byte(v.GetInt("proxy.namespace_id"))
	cfg.Proxy.Interface = v.GetString("proxy.interface")
	cfg.Proxy.StorageClassPath = v.GetString("proxy.storage_class.path")
	cfg.Proxy.Endpoints = make(map[int]ProxyEndpoint)
	for i := 0; i < cfg.Proxy.Num; i++ {
		prefix := proxyKey(i)
		if !v.IsSet(prefix + ".ip") {
			continue
		}
		cfg.Proxy.Endpoints[i] = ProxyEndpoint{
			IP:        v.GetString(prefix + ".ip"),
			CoordPort: v.GetInt(prefix + ".coord_port"),
		}
	}

	cfg.Metastore.Type = v.GetString("metastore.type")
	cfg.Metastore.IP = v.GetString("metastore.ip")
	cfg.Metastore.Port = v.GetInt("metastore.port")

	cfg.Recovery.TriggerEnabled = v.GetBool("recovery.trigger_enabled")
	cfg.Recovery.TriggerStartInterval = v.GetDuration("recovery.trigger_start_interval")
	cfg.Recovery.ScanInterval = v.GetDuration("recovery.scan_interval")
	cfg.Recovery.ScanChunkInterval = v.GetDuration("recovery.scan_chunk_interval")
	cfg.Recovery.ScanChunkBatchSize = v.GetInt("recovery.scan_chunk_batch_size")
	cfg.Recovery.BatchSize = v.GetInt("recovery.batch_size")
	cfg.Recovery.ChunkScanSamplingPolicy = samplingPolicyFromString(v.GetString("recovery.chunk_scan_sampling_policy"))
	cfg.Recovery.ChunkScanSamplingRate = v.GetFloat64("recovery.chunk_scan_sampling_rate")

	cfg.Misc.NumWorkers = v.GetInt("misc.num_workers")
	cfg.Misc.ZMQThread = v.GetInt("misc.zmq_thread")
	cfg.Misc.RepairAtProxy = v.GetBool("misc.repair_at_proxy")
	cfg.Misc.RepairUsingCAR = v.GetBool("misc.repair_using_car")
	cfg.Misc.OverwriteFiles = v.GetBool("misc.overwrite_files")
	cfg.Misc.ReuseDataConnection = v.GetBool("misc.reuse_data_connection")
	cfg.Misc.LivenessCacheTime = v.GetDuration("misc.liveness_cache_time")
	cfg.Misc.JournalCheckInterval = v.GetDuration("misc.journal_check_interval")
	cfg.Misc.AgentList = v.GetStringSlice("misc.agent_list")

	cfg.DataDistribution.Policy = placementPolicyFromString(v.GetString("data_distribution.policy"))
	cfg.DataDistribution.NearIPRanges = v.GetStringSlice("data_distribution.near_ip_ranges")

	cfg.BackgroundWrite.WriteRedundancyInBackground = v.GetBool("background_write.write_redundancy_in_background")
	cfg.BackgroundWrite.AckRedundancyInBackground = v.GetBool("background_write.ack_redundancy_in_background")
	cfg.BackgroundWrite.NumBackgroundChunkWorker = v.GetInt("background_write.num_background_chunk_worker")
	cfg.BackgroundWrite.BackgroundTaskCheckInterval = v.GetDuration("background_write.background_task_check_interval")

	cfg.ZMQInterface.NumWorkers = v.GetInt("zmq_interface.num_workers")
	cfg.ZMQInterface.Port = v.GetInt("zmq_interface.port")

	cfg.Staging.Enabled = v.GetBool("staging.enabled")
	cfg.Staging.URL = v.GetString("staging.url")
	cfg.Staging.AutocleanPolicy = v.GetString("staging.autoclean_policy")
	cfg.Staging.AutocleanScanInterval = v.GetDuration("staging.autoclean_scan_interval")
	cfg.Staging.AutocleanNumDaysExpire = v.GetInt("staging.autoclean_num_days_expire")
	cfg.Staging.BgwritePolicy = v.GetString("staging.bgwrite_policy")
	cfg.Staging.BgwriteScanInterval = v.GetDuration("staging.bgwrite_scan_interval")
	cfg.Staging.BgwriteScheduledTime = v.GetString("staging.bgwrite_scheduled_time")

	cfg.Retry.Num = v.GetInt("retry.num")
	cfg.Retry.Interval = v.GetDuration("retry.interval")

	cfg.Network.ListenAllIPs = v.GetBool("network.listen_all_ips")
	cfg.Network.TCPKeepAlive = v.GetDuration("network.tcp_keep_alive")
	cfg.Network.TCPBufferSize = v.GetInt("network.tcp_buffer_size")

	cfg.DataIntegrity.VerifyChunkChecksum = v.GetBool("data_integrity.verify_chunk_checksum")

	cfg.FailureDetection.Timeout = v.GetDuration("failure_detection.timeout")

	cfg.Event.EventProbeTimeout = v.GetDuration("event.event_probe_timeout")

	classes, err := loadStorageClasses(cfg.Proxy.StorageClassPath)
	if err != nil {
		return nil, err
	}
	cfg.Proxy.StorageClasses = classes

	return &cfg, nil
}

func proxyKey(i int) string {
	return "proxy" + strconv.Itoa(i)
}
