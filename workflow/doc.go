// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供基于共享状态的阶段图编排引擎。

# 概述

一个工作流由若干命名阶段（Stage）组成，阶段之间通过无条件边、并行扇出边
和条件边连接。每个阶段读取当前状态的快照并返回一个稀疏的部分更新，引擎按
Schema 声明的合并规则把更新合入共享状态，再根据边计算后继阶段。

# 核心类型

  - Stage[S, P]     — 阶段函数 func(ctx, S) (P, error)
  - Router[S]       — 条件路由函数，返回一个标签
  - Schema[S, P]    — 合并、错误追加、修订号与快照克隆规则
  - Builder[S, P]   — 声明阶段与边，Compile 时做引用完整性校验
  - Graph[S, P]     — 编译后的只读图，可并发 Invoke
  - Values          — 基于 map 的通用状态，配合 Annotation 声明逐键策略

# 执行语义

  - FIFO 队列调度，已在同一修订号下执行过的阶段不会重复执行
  - 并行组成员针对同一快照并发执行，全部返回后按注册顺序合并，之后调度汇合阶段
  - 阶段错误与 panic 被包装为 StageExecutionError 并追加到状态的错误列表
  - 路由返回未映射的标签时记录错误并终止该分支
  - 迭代上限按阶段调用次数计数，达到后追加一条错误并停止
  - RevisionRouter 实现质量门回退循环，上限为 n 时被修订阶段最多执行 n+1 次

# 辅助能力

  - 阶段中间件：Chain、WithTimeout、WithRetry、WithRateLimit、
    WithCircuitBreaker、WithFallback
  - 审计日志：LogEntry 与 FormatLog
  - 执行历史：ExecutionHistory
  - 图描述导出：GraphDefinition（JSON / YAML）
*/
package workflow
