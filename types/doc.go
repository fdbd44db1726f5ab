// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 FlowState 各包共享的基础类型。

types 不依赖任何内部包，workflow 与 pipeline 均从这里取用统一的类型契约：

  - Error / ErrorCode — 结构化错误（Code、Retryable、Stage 标记）
  - Message / Role    — 发送给补全接口的对话消息
  - Context 传播      — WithRunID / WithStage，供 stage 在日志中关联运行
*/
package types
