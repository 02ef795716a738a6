package config

import (
	plcbridge "github.com/TimeWtr/plc_bridge"
	"github.com/TimeWtr/plc_bridge/const"
	"github.com/TimeWtr/plc_bridge/domain"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix 环境变量前缀，例如 PLCBRIDGE_SERVER_PORT_PLT
const EnvPrefix = "PLCBRIDGE"

type Config struct {
	Server          ServerConfig    `mapstructure:"server"`
	PLTServer       Endpoint        `mapstructure:"plt_server"`
	BPServer        Endpoint        `mapstructure:"bp_server"`
	Transport       TransportConfig `mapstructure:"transport"`
	Paths           PathsConfig     `mapstructure:"paths"`
	Ingestion       IngestionConfig `mapstructure:"ingestion"`
	MessagePrefixes PrefixConfig    `mapstructure:"message_prefixes"`
	Log             LogConfig       `mapstructure:"log"`

	// Schema 协议表，按文件中的声明顺序解析
	Schema domain.ProtocolSchema `mapstructure:"-"`
}

// ServerConfig 本地监听，两个控制器各一个端口
type ServerConfig struct {
	IP      string `mapstructure:"ip"`
	PortPLT int    `mapstructure:"port_plt"`
	PortBP  int    `mapstructure:"port_bp"`
}

type Endpoint struct {
	IP   string `mapstructure:"ip"`
	Port int    `mapstructure:"port"`
}

func (e Endpoint) Address() string {
	if e.IP == "" || e.Port <= 0 {
		return ""
	}
	return net.JoinHostPort(e.IP, strconv.Itoa(e.Port))
}

type TransportConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	ReplyWait time.Duration `mapstructure:"reply_wait"`
	Ack       string        `mapstructure:"ack"`
	Limiter   int64         `mapstructure:"limiter"`
}

type PathsConfig struct {
	BaseData     string      `mapstructure:"base_data"`
	ValidJobs    string      `mapstructure:"valid_jobs"`
	FinishedJobs string      `mapstructure:"finished_jobs"`
	BaseFile     string      `mapstructure:"base_file"`
	Folders      FolderNames `mapstructure:"folders"`
	OutputJSON   string      `mapstructure:"output_json"`
}

type FolderNames struct {
	JobInfo          string `mapstructure:"job_info"`
	JobInfoProcessed string `mapstructure:"job_info_processed"`
	JobInfoError     string `mapstructure:"job_info_error"`
}

type IngestionConfig struct {
	Schedule string        `mapstructure:"schedule"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type PrefixConfig struct {
	JobInfo string `mapstructure:"job_info"`
	BoxInfo string `mapstructure:"box_info"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SetDefaults 所有配置项都需要默认值，环境变量才能覆盖
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.ip", "0.0.0.0")
	v.SetDefault("server.port_plt", 31864)
	v.SetDefault("server.port_bp", 31865)

	v.SetDefault("plt_server.ip", "")
	v.SetDefault("plt_server.port", 0)
	v.SetDefault("bp_server.ip", "")
	v.SetDefault("bp_server.port", 0)

	v.SetDefault("transport.timeout", _const.DefaultSendTimeout)
	v.SetDefault("transport.reply_wait", time.Duration(0))
	v.SetDefault("transport.ack", _const.DefaultAck)
	v.SetDefault("transport.limiter", _const.DefaultLimiter)

	v.SetDefault("paths.base_data", "./data")
	v.SetDefault("paths.valid_jobs", "ValidJobs.json")
	v.SetDefault("paths.finished_jobs", "FinishedJobs.db")
	v.SetDefault("paths.base_file", "./files")
	v.SetDefault("paths.folders.job_info", "10-JobInfo")
	v.SetDefault("paths.folders.job_info_processed", "11-JobInfoProcessed")
	v.SetDefault("paths.folders.job_info_error", "12-JobInfoError")
	v.SetDefault("paths.output_json", "./output_json")

	v.SetDefault("ingestion.schedule", _const.DefaultIngestSchedule)
	v.SetDefault("ingestion.watch", true)
	v.SetDefault("ingestion.debounce", 500*time.Millisecond)

	v.SetDefault("message_prefixes.job_info", _const.DefaultJobInfoPrefix)
	v.SetDefault("message_prefixes.box_info", _const.DefaultBoxInfoPrefix)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load 读取YAML配置，环境变量优先于文件
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read config %s", path), plcbridge.ErrConfiguration)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode config %s", path), plcbridge.ErrConfiguration)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read config %s", path), plcbridge.ErrConfiguration)
	}
	if cfg.Schema, err = ParseSchemas(b); err != nil {
		return nil, err
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 启动时检查，缺少协议表或数据目录直接失败
func (c *Config) Validate() error {
	for _, t := range []_const.MessageType{
		_const.MessageTypeBatchData,
		_const.MessageTypeJobInfo,
		_const.MessageTypeBoxInfo,
	} {
		s, ok := c.Schema.Message(t)
		if !ok || len(s.Fields) == 0 {
			return errors.Mark(errors.Newf("schemas.%s.properties is missing", t), plcbridge.ErrConfiguration)
		}
	}
	if s, _ := c.Schema.Message(_const.MessageTypeBatchData); s.Filename == "" {
		return errors.Mark(errors.New("schemas.batchData.filename is missing"), plcbridge.ErrConfiguration)
	}
	if c.Paths.BaseData == "" || c.Paths.ValidJobs == "" {
		return errors.Mark(errors.New("paths.base_data and paths.valid_jobs are required"), plcbridge.ErrConfiguration)
	}
	if c.Transport.Timeout <= 0 {
		return errors.Mark(errors.Newf("transport.timeout must be positive, got %s", c.Transport.Timeout), plcbridge.ErrConfiguration)
	}
	if c.Transport.Limiter <= 0 {
		return errors.Mark(errors.Newf("transport.limiter must be positive, got %d", c.Transport.Limiter), plcbridge.ErrConfiguration)
	}
	return nil
}

func (c *Config) ValidJobsPath() string {
	return filepath.Join(c.Paths.BaseData, c.Paths.ValidJobs)
}

func (c *Config) FinishedJobsPath() string {
	return filepath.Join(c.Paths.BaseData, c.Paths.FinishedJobs)
}

func (c *Config) JobInfoDir() string {
	return filepath.Join(c.Paths.BaseFile, c.Paths.Folders.JobInfo)
}

func (c *Config) JobInfoProcessedDir() string {
	return filepath.Join(c.Paths.BaseFile, c.Paths.Folders.JobInfoProcessed)
}

func (c *Config) JobInfoErrorDir() string {
	return filepath.Join(c.Paths.BaseFile, c.Paths.Folders.JobInfoError)
}

func (c *Config) ListenPLT() string {
	return net.JoinHostPort(c.Server.IP, strconv.Itoa(c.Server.PortPLT))
}

func (c *Config) ListenBP() string {
	return net.JoinHostPort(c.Server.IP, strconv.Itoa(c.Server.PortBP))
}

type property struct {
	Name   string `yaml:"name"`
	Length int    `yaml:"length"`
}

// ParseSchemas 解析schemas节点，保留properties的声明顺序，未知的表忽略
func ParseSchemas(b []byte) (domain.ProtocolSchema, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return domain.ProtocolSchema{}, errors.Mark(errors.Wrap(err, "parse schemas"), plcbridge.ErrConfiguration)
	}
	if len(root.Content) == 0 {
		return domain.NewProtocolSchema(), nil
	}

	schemas := child(root.Content[0], "schemas")
	if schemas == nil {
		return domain.NewProtocolSchema(), nil
	}

	var res []domain.MessageSchema
	for i := 0; i+1 < len(schemas.Content); i += 2 {
		name, node := schemas.Content[i].Value, schemas.Content[i+1]
		t, ok := messageType(name)
		if !ok {
			continue
		}

		ms := domain.MessageSchema{Type: t}
		if fn := child(node, "filename"); fn != nil {
			ms.Filename = fn.Value
		}

		props := child(node, "properties")
		if props != nil && props.Kind == yaml.MappingNode {
			for j := 0; j+1 < len(props.Content); j += 2 {
				key := props.Content[j].Value
				var p property
				if err := props.Content[j+1].Decode(&p); err != nil {
					return domain.ProtocolSchema{}, errors.Mark(
						errors.Wrapf(err, "schemas.%s.properties.%s", name, key), plcbridge.ErrConfiguration)
				}
				if p.Length < 0 {
					return domain.ProtocolSchema{}, errors.Mark(
						errors.Newf("schemas.%s.properties.%s: negative length", name, key), plcbridge.ErrConfiguration)
				}
				ms.Fields = append(ms.Fields, domain.FieldSpec{Key: key, Wire: p.Name, Width: p.Length})
			}
		}
		res = append(res, ms)
	}

	return domain.NewProtocolSchema(res...), nil
}

func child(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// messageType 表名不区分大小写，例如boxinfo和boxInfo
func messageType(name string) (_const.MessageType, bool) {
	for _, t := range _const.MessageTypes {
		if strings.EqualFold(t.String(), name) {
			return t, true
		}
	}
	return 0, false
}
