// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package pipeline 在 workflow 引擎之上实现 FlowState 页面摘要流水线。

# 流程

	navigator → security → {compassionate_writer ∥ technical_writer} → arbiter → guardian
	guardian ─revise→ compassionate_writer（最多 revision_ceiling 次）
	guardian ─assemble→ assemble → END

# 组成

  - AgentState / Update — 共享状态与部分更新，Schema 声明逐字段合并规则
  - Completer           — 语言模型客户端接口；ReplayCompleter 从 YAML 回放固定响应
  - Summarizer          — 编译好的摘要图，Summarize 返回 Markdown 摘要、错误列表与通信日志

# 解析策略

lenient 模式下，模型响应无法解析或调用失败时阶段退回默认结果继续执行
（安全分析按中等风险处理，仲裁采用温和版本，审查自动通过）；
strict 模式下这些情况作为阶段错误记录在状态的错误列表中。
*/
package pipeline
