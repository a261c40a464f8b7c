package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Actuator modes, selected by general.video-source.
const (
	ModeSimulator = "simulator"
	ModeFile      = "file"
	ModePhysical  = "raspberry"
)

// Defaults mirrors the configuration the pilot ships with.
func Defaults() map[string]string {
	return map[string]string{
		"general.record":               "true",
		"general.logging":              "true",
		"general.preview":              "true",
		"general.visualize-processing": "true",
		"general.record-dir":           "./",
		"general.video-source":         ModeSimulator,
		"general.camera-index":         "1",
		"general.fps":                  "30",
		"general.log-level":            "info",

		"opencv.upper-h":                         "180",
		"opencv.upper-s":                         "255",
		"opencv.upper-v":                         "255",
		"opencv.lower-h":                         "0",
		"opencv.lower-s":                         "0",
		"opencv.lower-v":                         "0",
		"opencv.collision-box-width":             "100",
		"opencv.collision-box-height":            "100",
		"opencv.collision-box-horizontal-offset": "0",
		"opencv.collision-box-vertical-offset":   "0",

		"groundstation.enabled":           "true",
		"groundstation.host":              "127.0.0.1",
		"groundstation.query-port":        "1864",
		"groundstation.stream-port":       "2023",
		"groundstation.retry-delay":       "3s",
		"groundstation.heartbeat-period":  "3s",
		"groundstation.stream-cooldown":   "1000s",
		"groundstation.stream-quality":    "30",
		"groundstation.publish-every":     "1",
		"groundstation.max-datagram-size": "65000",

		"file.video-path": "source.mp4",

		"simulator.host": "127.0.0.1",
		"simulator.port": "5710",

		"serial.port":      "/dev/ttyACM0",
		"serial.baud-rate": "115200",

		"server.addr":       "127.0.0.1:8080",
		"server.static-dir": "",

		"store.path": "journal.db",

		"session.on-error":            "restart",
		"session.restart-delay":       "3s",
		"session.power-poll-interval": "100ms",
		"session.codec":               "XVID",
	}
}

// Config is the typed view over Values used by the rest of the program.
type Config struct {
	General       General
	OpenCV        OpenCV
	GroundStation GroundStation
	File          File
	Simulator     Simulator
	Serial        Serial
	Server        Server
	Store         Store
	Session       Session
}

// General holds top-level switches.
type General struct {
	Record      bool
	Logging     bool
	Preview     bool
	Visualize   bool
	RecordDir   string
	VideoSource string
	CameraIndex int
	FPS         int
	LogLevel    string
}

// OpenCV holds the HSV thresholds and the collision box.
type OpenCV struct {
	Lower      [3]int
	Upper      [3]int
	BoxWidth   int
	BoxHeight  int
	BoxOffsetX int
	BoxOffsetY int
}

// GroundStation holds the operator console link settings.
type GroundStation struct {
	Enabled         bool
	Host            string
	QueryPort       int
	StreamPort      int
	RetryDelay      time.Duration
	HeartbeatPeriod time.Duration
	StreamCooldown  time.Duration
	StreamQuality   int
	PublishEvery    int
	MaxDatagramSize int
}

// QueryAddr returns host:port of the control channel.
func (g GroundStation) QueryAddr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.QueryPort)
}

// StreamAddr returns host:port of the telemetry channel.
func (g GroundStation) StreamAddr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.StreamPort)
}

// File holds the file-source settings.
type File struct {
	VideoPath string
}

// Simulator holds the simulator endpoint.
type Simulator struct {
	Host string
	Port int
}

// Addr returns host:port of the simulator.
func (s Simulator) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Serial holds the actuator board port settings.
type Serial struct {
	Port     string
	BaudRate int
}

// Server holds the local operator HTTP surface settings.
type Server struct {
	Addr      string
	StaticDir string
}

// Store holds the mission journal location. A relative path is resolved
// against general.record-dir.
type Store struct {
	Path string
}

// Session holds the recording lifecycle settings.
type Session struct {
	OnError           string
	RestartDelay      time.Duration
	PowerPollInterval time.Duration
	Codec             string
}

// Load reads defaults, then envFile (if it exists), then the environment.
// An empty envFile means ".env".
func Load(envFile string) (*Config, *Values, error) {
	if envFile == "" {
		envFile = ".env"
	}

	values := NewValues(Defaults())

	fileValues, err := godotenv.Read(envFile)
	switch {
	case err == nil:
		for name, val := range fileValues {
			if key, ok := keyForEnv(values, name); ok {
				values.Set(key, val)
			}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, nil, fmt.Errorf("read %s: %w", envFile, err)
	}

	values.ApplyEnv(os.LookupEnv)

	cfg, err := Decode(values)
	if err != nil {
		return nil, nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, values, nil
}

// keyForEnv finds the locator whose environment name is name.
func keyForEnv(v *Values, name string) (string, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for key := range v.data {
		if EnvName(key) == name {
			return key, true
		}
	}
	return "", false
}

// FromValues builds a Config from a Values store. Malformed numbers read
// as zero; Decode reports them instead.
func FromValues(v *Values) *Config {
	cfg, _ := Decode(v)
	return cfg
}

// fieldReader collects parse errors while a Config is filled in.
type fieldReader struct {
	v    *Values
	errs []error
}

func (r *fieldReader) int(key string) int {
	n, err := r.v.ParseInt(key)
	if err != nil {
		r.errs = append(r.errs, err)
	}
	return n
}

func (r *fieldReader) duration(key string) time.Duration {
	d, err := r.v.ParseDuration(key)
	if err != nil {
		r.errs = append(r.errs, err)
	}
	return d
}

// Decode builds a Config from a Values store. Every malformed integer or
// duration is reported in the joined error; the Config is still returned
// with those fields zeroed.
func Decode(v *Values) (*Config, error) {
	r := &fieldReader{v: v}
	cfg := &Config{
		General: General{
			Record:      v.Bool("general.record"),
			Logging:     v.Bool("general.logging"),
			Preview:     v.Bool("general.preview"),
			Visualize:   v.Bool("general.visualize-processing"),
			RecordDir:   v.String("general.record-dir"),
			VideoSource: strings.ToLower(v.String("general.video-source")),
			CameraIndex: r.int("general.camera-index"),
			FPS:         r.int("general.fps"),
			LogLevel:    v.String("general.log-level"),
		},
		OpenCV: OpenCV{
			Lower:      [3]int{r.int("opencv.lower-h"), r.int("opencv.lower-s"), r.int("opencv.lower-v")},
			Upper:      [3]int{r.int("opencv.upper-h"), r.int("opencv.upper-s"), r.int("opencv.upper-v")},
			BoxWidth:   r.int("opencv.collision-box-width"),
			BoxHeight:  r.int("opencv.collision-box-height"),
			BoxOffsetX: r.int("opencv.collision-box-horizontal-offset"),
			BoxOffsetY: r.int("opencv.collision-box-vertical-offset"),
		},
		GroundStation: GroundStation{
			Enabled:         v.Bool("groundstation.enabled"),
			Host:            v.String("groundstation.host"),
			QueryPort:       r.int("groundstation.query-port"),
			StreamPort:      r.int("groundstation.stream-port"),
			RetryDelay:      r.duration("groundstation.retry-delay"),
			HeartbeatPeriod: r.duration("groundstation.heartbeat-period"),
			StreamCooldown:  r.duration("groundstation.stream-cooldown"),
			StreamQuality:   r.int("groundstation.stream-quality"),
			PublishEvery:    r.int("groundstation.publish-every"),
			MaxDatagramSize: r.int("groundstation.max-datagram-size"),
		},
		File: File{
			VideoPath: v.String("file.video-path"),
		},
		Simulator: Simulator{
			Host: v.String("simulator.host"),
			Port: r.int("simulator.port"),
		},
		Serial: Serial{
			Port:     v.String("serial.port"),
			BaudRate: r.int("serial.baud-rate"),
		},
		Server: Server{
			Addr:      v.String("server.addr"),
			StaticDir: v.String("server.static-dir"),
		},
		Store: Store{
			Path: v.String("store.path"),
		},
		Session: Session{
			OnError:           strings.ToLower(v.String("session.on-error")),
			RestartDelay:      r.duration("session.restart-delay"),
			PowerPollInterval: r.duration("session.power-poll-interval"),
			Codec:             v.String("session.codec"),
		},
	}
	return cfg, errors.Join(r.errs...)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.General.FPS <= 0 {
		return fmt.Errorf("general.fps must be positive, got %d", c.General.FPS)
	}
	if c.OpenCV.BoxWidth < 0 || c.OpenCV.BoxHeight < 0 {
		return fmt.Errorf("collision box size must not be negative")
	}
	switch c.Session.OnError {
	case "restart", "terminate":
	default:
		return fmt.Errorf("session.on-error must be restart or terminate, got %q", c.Session.OnError)
	}
	if c.GroundStation.PublishEvery <= 0 {
		return fmt.Errorf("groundstation.publish-every must be positive, got %d", c.GroundStation.PublishEvery)
	}
	return nil
}
