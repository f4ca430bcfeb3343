package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantErr     bool
		wantTracing bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "既定値で読み込める",
			check: func(t *testing.T, cfg *Config) {
				if cfg.DB.Host != "localhost" || cfg.DB.Port != 5432 {
					t.Errorf("DB = %s:%d, want localhost:5432", cfg.DB.Host, cfg.DB.Port)
				}
				if cfg.Scheduler.Interval != 5*time.Minute {
					t.Errorf("Scheduler.Interval = %v, want 5m", cfg.Scheduler.Interval)
				}
				if cfg.Booking.GracePeriodMinutes != 15 {
					t.Errorf("Booking.GracePeriodMinutes = %d, want 15", cfg.Booking.GracePeriodMinutes)
				}
				if cfg.Actuation.Transport != TransportLog {
					t.Errorf("Actuation.Transport = %q, want %q", cfg.Actuation.Transport, TransportLog)
				}
				if cfg.Actuation.ReconnectBackoff != 30*time.Second {
					t.Errorf("Actuation.ReconnectBackoff = %v, want 30s", cfg.Actuation.ReconnectBackoff)
				}
				if cfg.SFN.TaskToken != "token" {
					t.Errorf("SFN.TaskToken = %q, want %q", cfg.SFN.TaskToken, "token")
				}
			},
		},
		{
			name: "環境変数で上書きできる",
			env: map[string]string{
				"DB_HOST":                      "db.internal",
				"DB_USERNAME":                  "booking",
				"SCHEDULER_INTERVAL":           "30s",
				"BOOKING_GRACE_PERIOD_MINUTES": "10",
				"ACTUATION_TRANSPORT":          "amqp",
				"REDIS_ADDR":                   "localhost:6379",
				"REDIS_DB":                     "2",
				"METRICS_ADDR":                 ":9100",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.DB.Host != "db.internal" || cfg.DB.UserName != "booking" {
					t.Errorf("DB = %+v", cfg.DB)
				}
				if cfg.Scheduler.Interval != 30*time.Second {
					t.Errorf("Scheduler.Interval = %v, want 30s", cfg.Scheduler.Interval)
				}
				if cfg.Booking.GracePeriodMinutes != 10 {
					t.Errorf("Booking.GracePeriodMinutes = %d, want 10", cfg.Booking.GracePeriodMinutes)
				}
				if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
					t.Errorf("Redis = %+v", cfg.Redis)
				}
				if cfg.Metrics.Addr != ":9100" {
					t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
				}
			},
		},
		{
			name:        "トレースを有効にできる",
			env:         map[string]string{"ROOMBOOKING_ENABLE_TRACING": "true"},
			wantTracing: true,
		},
		{
			name: "SDKが無効化されている場合はトレースしない",
			env: map[string]string{
				"ROOMBOOKING_ENABLE_TRACING": "true",
				"AWS_XRAY_SDK_DISABLED":      "true",
			},
			wantTracing: false,
		},
		{
			name:    "不明な送信方式",
			env:     map[string]string{"ACTUATION_TRANSPORT": "mqtt"},
			wantErr: true,
		},
		{
			name:    "負の猶予時間",
			env:     map[string]string{"BOOKING_GRACE_PERIOD_MINUTES": "-1"},
			wantErr: true,
		},
		{
			name:    "不正な間隔",
			env:     map[string]string{"SCHEDULER_INTERVAL": "often"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AWS_XRAY_SDK_DISABLED", "")
			t.Setenv("ROOMBOOKING_ENABLE_TRACING", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig("token")
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.EnableTracing != tt.wantTracing {
				t.Errorf("EnableTracing = %v, want %v", cfg.EnableTracing, tt.wantTracing)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
