// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的编排指标采集能力，覆盖
阶段、运行、模型调用与熔断器四个维度。

# 概述

Collector 实现 workflow.MetricsRecorder，挂到 Builder.WithMetrics
后由引擎在每次阶段调用和每次运行结束时回调。指标通过 promauto.With
注册到调用方传入的 Registry，测试中可使用独立的 prometheus.NewRegistry()。

# 主要能力

  - 阶段指标：调用总数、耗时、失败计数（按结构化错误码分组），
    按 graph/stage/parallel 分组。
  - 运行指标：运行总数（按 outcome 分组）、运行耗时、每次运行的阶段调用次数。
  - 模型调用指标：调用总数与耗时，按 stage 分组。
  - 熔断器指标：当前状态 Gauge 与状态转换计数，
    RecordCircuitChange 可直接作为 workflow.StateChangeFunc 使用。
*/
package metrics
