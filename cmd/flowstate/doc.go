// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 FlowState 命令行程序入口。

# 概述

cmd/flowstate 编译摘要图并以回放的模型响应运行它，便于在没有
真实模型的环境中检查图结构和生成结果。程序支持 YAML 配置文件加载、
结构化日志（zap）、OpenTelemetry 追踪以及 Prometheus 指标导出。

# 主要能力

  - 子命令：describe（输出图定义）、run（生成摘要）、version
  - describe 支持 yaml 与 json 两种格式
  - run 读取页面 JSON 与按阶段记录的响应 YAML，--verbose 时附带通信日志
  - metrics.enabled 时统计阶段、运行、模型调用与熔断器指标，
    --metrics-out 将其写入文本文件
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
