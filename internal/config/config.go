package config

import (
	"fmt"
	"os"

	"github.com/coursevault/coursevault/internal/entity"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	StateBackendFile  = "file"
	StateBackendRedis = "redis"

	envSheetURL = "COURSEVAULT_SHEET_URL"
	envRedisURL = "COURSEVAULT_REDIS_URL"
)

// ColumnSchema maps the logical manifest fields to the source column labels.
// It is resolved once against the sheet header when the manifest is parsed.
type ColumnSchema struct {
	Course   string `yaml:"course"`
	Semester string `yaml:"semester"`
	Term     string `yaml:"term"`
	Status   string `yaml:"status"`
	// Assets maps each asset type to the label of its link column.
	Assets map[entity.AssetType]string `yaml:"assets"`
}

type ManifestConfig struct {
	SheetURL   string       `yaml:"sheet_url"`
	CacheDir   string       `yaml:"cache_dir"`
	CacheHours float64      `yaml:"cache_hours"`
	Columns    ColumnSchema `yaml:"columns"`
}

type ScanConfig struct {
	// Roots lists extra mount paths to index in addition to the volumes.
	Roots          []string `yaml:"roots"`
	CacheDir       string   `yaml:"cache_dir"`
	CacheMaxAgeHrs float64  `yaml:"cache_max_age_hours"`
	DescFileName   string   `yaml:"desc_filename"`
}

type MatchConfig struct {
	Threshold int `yaml:"threshold"`
}

type AssignConfig struct {
	// EpsilonRatio is the free-space ratio above which one volume is
	// preferred outright; below it new assignments alternate round-robin.
	EpsilonRatio float64 `yaml:"epsilon_ratio"`
	MinFreeGB    float64 `yaml:"min_free_gb"`
}

type TransferConfig struct {
	Remote    string `yaml:"remote"`
	Retries   int    `yaml:"retries"`
	Transfers int    `yaml:"transfers"`
	Checkers  int    `yaml:"checkers"`
	// Workers bounds concurrent courses. Courses on the same volume are
	// always serialized regardless of this value.
	Workers int `yaml:"workers"`
}

type LinkCheckConfig struct {
	Enabled    bool `yaml:"enabled"`
	TimeoutSec int  `yaml:"timeout_seconds"`
	Workers    int  `yaml:"workers"`
}

type StateConfig struct {
	Backend  string `yaml:"backend"`
	Dir      string `yaml:"dir"`
	RedisURL string `yaml:"redis_url"`
}

type ReportConfig struct {
	Dir string `yaml:"dir"`
}

type Config struct {
	LogLevel  string           `yaml:"log_level"`
	Volumes   []entity.Volume  `yaml:"volumes"`
	Manifest  ManifestConfig   `yaml:"manifest"`
	Scan      ScanConfig       `yaml:"scan"`
	Match     MatchConfig      `yaml:"match"`
	Assign    AssignConfig     `yaml:"assign"`
	Transfer  TransferConfig   `yaml:"transfer"`
	LinkCheck LinkCheckConfig  `yaml:"link_check"`
	State     StateConfig      `yaml:"state"`
	Report    ReportConfig     `yaml:"report"`
}

// Default returns the built-in configuration. Values mirror the knobs the
// tool historically ran with.
func Default() *Config {
	return &Config{
		LogLevel: LogLevelInfo,
		Manifest: ManifestConfig{
			CacheDir:   ".coursevault/manifest",
			CacheHours: 1,
			Columns: ColumnSchema{
				Course:   "Course",
				Semester: "Sem",
				Term:     "Term",
				Status:   "Status",
				Assets: map[entity.AssetType]string{
					entity.AssetCourseOutline:   "Course Outline",
					entity.AssetPPTs:            "PPTs",
					entity.AssetWrittenAssets:   "Written Assets (PQ, GQ, DP)",
					entity.AssetFinalVideos:     "Final Videos",
					entity.AssetRawVideos:       "Raw Videos",
					entity.AssetCourseArtifacts: "Course Artifacts Link",
				},
			},
		},
		Scan: ScanConfig{
			CacheDir:       ".coursevault/index",
			CacheMaxAgeHrs: 24,
			DescFileName:   "course.md",
		},
		Match: MatchConfig{Threshold: 75},
		Assign: AssignConfig{
			EpsilonRatio: 1.20,
			MinFreeGB:    5.0,
		},
		Transfer: TransferConfig{
			Remote:    "gdrive",
			Retries:   3,
			Transfers: 4,
			Checkers:  8,
			Workers:   1,
		},
		LinkCheck: LinkCheckConfig{
			Enabled:    true,
			TimeoutSec: 15,
			Workers:    8,
		},
		State: StateConfig{
			Backend: StateBackendFile,
			Dir:     ".coursevault/state",
		},
		Report: ReportConfig{Dir: ".coursevault/report"},
	}
}

// Load reads the yaml config at path over the defaults and applies the
// environment overlay. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	_ = godotenv.Load()
	if url := os.Getenv(envSheetURL); url != "" {
		cfg.Manifest.SheetURL = url
	}
	if url := os.Getenv(envRedisURL); url != "" {
		cfg.State.RedisURL = url
	}

	return cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// ScanRoots returns the deduplicated set of roots to index: every volume
// course root plus any extra configured roots.
func (c *Config) ScanRoots() []string {
	seen := make(map[string]struct{})
	var roots []string

	add := func(root string) {
		if root == "" {
			return
		}
		if _, ok := seen[root]; ok {
			return
		}
		seen[root] = struct{}{}
		roots = append(roots, root)
	}

	for i := range c.Volumes {
		add(c.Volumes[i].Root())
	}
	for _, root := range c.Scan.Roots {
		add(root)
	}

	return roots
}
