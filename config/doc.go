// Package config loads the fusion process configuration.
//
// A Loader starts from Defaults, deep-merges each file layer over it in
// order, then applies FUSION_* environment overrides and validates the
// result. Layers may be JSON (.json) or YAML (.yaml, .yml):
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/site.json")
//	cfg, err := loader.Load()
//
// Channel maps merge by key, so a layer can retune one subscriber without
// restating the others. A null value removes a default channel.
//
// Recognised environment overrides:
//
//	FUSION_LOG_LEVEL, FUSION_LOG_FORMAT, FUSION_METRICS_ADDR,
//	FUSION_TCP_BIND, FUSION_TCP_PORT,
//	FUSION_DECISION_INTERVAL, FUSION_SHUTDOWN_TIMEOUT
//
// Validation failures wrap errors.ErrInvalidConfig and list every problem.
package config
