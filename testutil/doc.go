// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 FlowState 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现
相似的测试基础设施。它只依赖 types，因此 workflow、pipeline
与 cmd 的包内测试都可以引入。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual / AssertErrorCode / AssertJSONEqual
  - 异步断言: AssertEventuallyTrue / WaitFor，支持超时轮询
  - 数据工具: MustJSON / Fenced，构造模型响应样例

# 使用示例

	ctx := testutil.TestContext(t)
	result, err := summarizer.Summarize(ctx, page)
	testutil.AssertErrorCode(t, err, types.ErrDecodeFailed)
*/
package testutil
