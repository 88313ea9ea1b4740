// Package config loads the turret's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"turret-ctrl/internal/yaw"
)

// ErrInvalid marks a configuration that must not be run.
var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Camera struct {
	Width     int     `toml:"width"`
	FrameRate float64 `toml:"frame_rate"`
	RTSPURL   string  `toml:"rtsp_url"`
	FramesDir string  `toml:"frames_dir"`
}

type Detection struct {
	Addr           string   `toml:"addr"`
	Sentinel       int64    `toml:"sentinel"`
	DialTimeout    Duration `toml:"dial_timeout"`
	ReplyTimeout   Duration `toml:"reply_timeout"`
	ReconnectDelay Duration `toml:"reconnect_delay"`
}

type SerialPort struct {
	Device      string   `toml:"device"`
	BaudRate    int      `toml:"baud_rate"`
	ReadTimeout Duration `toml:"read_timeout"`
}

type Serial struct {
	Range            SerialPort `toml:"range"`
	Motor            SerialPort `toml:"motor"`
	CompletionMarker string     `toml:"completion_marker"`
	ReconnectDelay   Duration   `toml:"reconnect_delay"`
}

type Yaw struct {
	Kp                     float64         `toml:"kp"`
	Ki                     float64         `toml:"ki"`
	Kd                     float64         `toml:"kd"`
	NeutralDuty            uint8           `toml:"neutral_duty"`
	LimitCounts            int32           `toml:"limit_counts"`
	ResetTimeout           Duration        `toml:"reset_timeout"`
	ResetIntegralOnInvalid bool            `toml:"reset_integral_on_invalid"`
	Calibration            yaw.Calibration `toml:"calibration"`
}

type Fire struct {
	// AimTolerance is a proportion of the image width.
	AimTolerance      float64  `toml:"aim_tolerance"`
	RequiredSamples   int      `toml:"required_samples"`
	Cooldown          Duration `toml:"cooldown"`
	CompletionTimeout Duration `toml:"completion_timeout"`
	// LaunchAngle in radians for the ballistic power model.
	LaunchAngle float64 `toml:"launch_angle"`
}

type Control struct {
	RateHz float64 `toml:"rate_hz"`
}

type Server struct {
	Listen string `toml:"listen"`
}

type Config struct {
	LogLevel  string    `toml:"log_level"`
	Camera    Camera    `toml:"camera"`
	Detection Detection `toml:"detection"`
	Serial    Serial    `toml:"serial"`
	Yaw       Yaw       `toml:"yaw"`
	Fire      Fire      `toml:"fire"`
	Control   Control   `toml:"control"`
	Server    Server    `toml:"server"`
}

// Default returns the bench configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Camera: Camera{
			Width:     640,
			FrameRate: 10,
		},
		Detection: Detection{
			Addr:           "[::1]:8000",
			Sentinel:       69420,
			DialTimeout:    Duration{5 * time.Second},
			ReplyTimeout:   Duration{2 * time.Second},
			ReconnectDelay: Duration{5 * time.Second},
		},
		Serial: Serial{
			Range:            SerialPort{Device: "/dev/ttyUSB0", BaudRate: 9600, ReadTimeout: Duration{time.Second}},
			Motor:            SerialPort{Device: "/dev/ttyUSB1", BaudRate: 115200, ReadTimeout: Duration{100 * time.Millisecond}},
			CompletionMarker: "done",
			ReconnectDelay:   Duration{5 * time.Second},
		},
		Yaw: Yaw{
			Kp:           0.4,
			Ki:           0.01,
			Kd:           0.05,
			NeutralDuty:  153,
			LimitCounts:  1200,
			ResetTimeout: Duration{10 * time.Second},
			Calibration:  yaw.DefaultCalibration(),
		},
		Fire: Fire{
			AimTolerance:    0.05,
			RequiredSamples: 5,
			Cooldown:        Duration{3 * time.Second},
			LaunchAngle:     0.1,
		},
		Control: Control{RateHz: 10},
		Server:  Server{Listen: ":8080"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid tunable.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Camera.Width <= 0 {
		bad("camera.width must be positive, got %d", c.Camera.Width)
	}
	if c.Camera.FrameRate <= 0 {
		bad("camera.frame_rate must be positive, got %g", c.Camera.FrameRate)
	}
	if c.Camera.RTSPURL != "" && c.Camera.FramesDir != "" {
		bad("camera.rtsp_url and camera.frames_dir are exclusive")
	}
	if strings.TrimSpace(c.Detection.Addr) == "" {
		bad("detection.addr is required")
	}
	if c.Detection.Sentinel == 0 {
		bad("detection.sentinel must be non-zero")
	}
	if c.Detection.ReconnectDelay.Duration < 0 || c.Serial.ReconnectDelay.Duration < 0 {
		bad("reconnect_delay must not be negative")
	}
	for name, p := range map[string]SerialPort{"serial.range": c.Serial.Range, "serial.motor": c.Serial.Motor} {
		if strings.TrimSpace(p.Device) == "" {
			bad("%s.device is required", name)
		}
		if p.BaudRate <= 0 {
			bad("%s.baud_rate must be positive, got %d", name, p.BaudRate)
		}
		if p.ReadTimeout.Duration <= 0 {
			bad("%s.read_timeout must be positive", name)
		}
	}
	if c.Yaw.LimitCounts <= 0 {
		bad("yaw.limit_counts must be positive, got %d", c.Yaw.LimitCounts)
	}
	if c.Yaw.Calibration.DeadBand < 0 || c.Yaw.Calibration.DeadBand > 100 {
		bad("yaw.calibration.dead_band must be within [0,100], got %g", c.Yaw.Calibration.DeadBand)
	}
	if c.Fire.AimTolerance <= 0 || c.Fire.AimTolerance > 1 {
		bad("fire.aim_tolerance must be within (0,1], got %g", c.Fire.AimTolerance)
	}
	if c.Fire.RequiredSamples < 1 {
		bad("fire.required_samples must be at least 1, got %d", c.Fire.RequiredSamples)
	}
	if c.Fire.Cooldown.Duration < 0 || c.Fire.CompletionTimeout.Duration < 0 {
		bad("fire durations must not be negative")
	}
	if c.Control.RateHz <= 0 {
		bad("control.rate_hz must be positive, got %g", c.Control.RateHz)
	}
	return errors.Join(errs...)
}

// AimTolerancePx converts the aim tolerance proportion into pixels.
func (c Config) AimTolerancePx() int32 {
	return int32(c.Fire.AimTolerance * float64(c.Camera.Width))
}

// ControlPeriod is the actuator loop cadence.
func (c Config) ControlPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.Control.RateHz)
}

// YawConfig builds the yaw controller configuration.
func (c Config) YawConfig() yaw.Config {
	return yaw.Config{
		Kp:                     c.Yaw.Kp,
		Ki:                     c.Yaw.Ki,
		Kd:                     c.Yaw.Kd,
		NeutralDuty:            c.Yaw.NeutralDuty,
		LimitCounts:            c.Yaw.LimitCounts,
		ResetIntegralOnInvalid: c.Yaw.ResetIntegralOnInvalid,
		Calibration:            c.Yaw.Calibration,
	}
}
