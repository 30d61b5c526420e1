// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package sources 封装工作流节点使用的外部 REST 数据源。

# 核心类型

  - Fetcher：共享的 JSON GET 管道：TLS 加固客户端、令牌桶限流、
    singleflight 去重、指数退避重试、可选 Redis 响应缓存
  - WeatherClient：OpenWeatherMap 5 日预报
  - PlacesClient：Google Places 文本搜索
  - ExchangeClient：exchangerate-api 汇率
  - FetchError：统一的数据源错误，ErrNoData 表示响应合法但无可用数据

调用方（工作流节点）负责将任何错误降级为占位值，不向执行器传播。
*/
package sources
