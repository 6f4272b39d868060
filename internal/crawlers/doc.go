// Package crawlers 负责页面获取、会话管理和并发调度
//
// # 概述
//
// 一次采集分为两个阶段:
//   - 发现阶段 (Discoverer): 逐页访问列表页,用选择器回退链收集详情页链接,按规范化URL去重
//   - 提取阶段 (Scheduler + ListingProcessor): 最多K个任务并发,每个任务一个会话,打开详情页并运行提取流水线
//
// 页面获取有两种实现,都通过 SessionProvider 接口提供:
//   - SessionPool: go-rod 浏览器,每个会话是一个独立的隐身上下文,带指纹、代理和 stealth 脚本
//   - StaticSessionProvider: colly HTTP客户端,可选 Chrome TLS 指纹,适合不依赖JS的页面
//
// # 导航
//
// Navigator 在每次尝试前等待限速器,按概率先访问绕行页面,加载后处理Cookie提示并模拟鼠标和滚动,
// 然后用 BlockDetector 检查拦截特征。被拦截或出错时按 base*attempt+抖动 退避,
// 最后一次尝试后不再等待:
//
//	nav := NewNavigator(DefaultNavigatorConfig(), detector, detours, consent)
//	result, err := nav.Navigate(ctx, page, url, NavigateOptions{Viewport: profile.Viewport})
//	var blocked *models.BlockedError
//	if errors.As(err, &blocked) {
//	    // 已尝试 blocked.Attempts 次
//	}
//
// # 并发
//
// Scheduler 在创建会话前获取信号量许可,会话关闭后才释放,因此同时打开的会话数不超过K。
// 每个目标恰好产出一条记录: 错误、panic 和会话创建失败都转为占位记录,不会取消其他任务。
// 开启资源限制时,K 由 ResourceMonitor.CalculateMaxSessions 根据可用内存和CPU数下调。
//
// # 调试
//
// 列表页缺少结果容器、详情页被拦截或提取失败时,DebugRecorder 在 <output>/debug 下保存截图和HTML。
package crawlers
