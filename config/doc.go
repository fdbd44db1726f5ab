// Package config 提供 FlowState 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 FLOWSTATE）的顺序加载，
// 覆盖引擎迭代上限、流水线阶段策略、日志、遥测与指标。
package config
