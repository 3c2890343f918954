// Package config 提供 crewflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 兼容环境变量 → CREWFLOW_ 前缀环境变量
// 的顺序叠加。兼容环境变量沿用旧部署的命名（ANTHROPIC_MODEL、
// LITELLM_MAX_RETRIES、RATE_LIMIT_DELAY 等），时长类字段接受纯整数秒。
package config
