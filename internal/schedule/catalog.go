package schedule

// Catalog is the fixed list of jobs run by the agents. Entries are ordered the
// way they are listed on the dashboard.
var Catalog = []JobDefinition{
	{ID: "tl-premarket", AgentID: "trading-lab", Name: "盤前準備", Schedule: "0 21 * * 1-5", TZ: DisplayZone, Description: "同步 Notion、掃描 Watchlist、風險檢查、交易決策", Category: CategoryTrading},
	{ID: "tl-open", AgentID: "trading-lab", Name: "開盤交易", Schedule: "45 22 * * 1-5", TZ: DisplayZone, Description: "開盤 15 分鐘後檢查持倉、掃描買點", Category: CategoryTrading},
	{ID: "tl-monitor-2330", AgentID: "trading-lab", Name: "盤中監控", Schedule: "30 23 * * 1-5", TZ: DisplayZone, Description: "持倉狀態、停損單、異動檢查", Category: CategoryTrading},
	{ID: "tl-trade-0000", AgentID: "trading-lab", Name: "盤中交易", Schedule: "0 0 * * 2-6", TZ: DisplayZone, Description: "帳戶狀態、Watchlist 掃描、進場決策", Category: CategoryTrading},
	{ID: "tl-monitor-0100", AgentID: "trading-lab", Name: "盤中監控", Schedule: "0 1 * * 2-6", TZ: DisplayZone, Description: "持倉檢查、異動監控", Category: CategoryTrading},
	{ID: "tl-check-0200", AgentID: "trading-lab", Name: "盤中檢查", Schedule: "0 2 * * 2-6", TZ: DisplayZone, Description: "中場調整、Watchlist 掃描、新聞", Category: CategoryTrading},
	{ID: "tl-monitor-0300", AgentID: "trading-lab", Name: "盤中監控", Schedule: "0 3 * * 2-6", TZ: DisplayZone, Description: "持倉檢查", Category: CategoryTrading},
	{ID: "tl-monitor-0400", AgentID: "trading-lab", Name: "盤中監控", Schedule: "0 4 * * 2-6", TZ: DisplayZone, Description: "持倉檢查", Category: CategoryTrading},
	{ID: "tl-close", AgentID: "trading-lab", Name: "收盤決策", Schedule: "30 4 * * 2-6", TZ: DisplayZone, Description: "過夜風險評估、減碼/清倉/加碼決策", Category: CategoryTrading},
	{ID: "tl-review", AgentID: "trading-lab", Name: "盤後反思+學習", Schedule: "0 6 * * 2-6", TZ: DisplayZone, Description: "交易回顧、Mimi 學習、SA 研究、策略優化", Category: CategoryTrading},
	{ID: "tl-weekly", AgentID: "trading-lab", Name: "週末總結", Schedule: "0 10 * * 6", TZ: DisplayZone, Description: "本週績效、交易分析、學習進度、下週計畫", Category: CategoryTrading},
	{ID: "pp-mimi-check", AgentID: "main", Name: "MimiVsJames 整理", Schedule: "30 5,15 * * *", TZ: DisplayZone, Description: "Gmail 收信 → 分類 → 整理到 Notion（4 個 Gate）", Category: CategoryContent},
	{ID: "pp-close-summary", AgentID: "main", Name: "收盤總結+催化劑", Schedule: "0 7 * * 2-6", TZ: DisplayZone, Description: "三大指數、持股 Top5、重要事件、催化劑提醒", Category: CategoryMonitoring},
	{ID: "pp-news", AgentID: "main", Name: "新聞+異動監控", Schedule: "0 10,14,18,22 * * *", TZ: DisplayZone, Description: "持股新聞、市場新聞、異常篩選（>5%通知）", Category: CategoryMonitoring},
	{ID: "pp-premarket", AgentID: "main", Name: "盤前報告", Schedule: "0 21 * * 1-5", TZ: DisplayZone, Description: "期指、盤前異動、Mimi 技術分析、Watchlist", Category: CategoryMonitoring},
	{ID: "pp-annual-review", AgentID: "main", Name: "年度投資回顧", Schedule: "0 20 31 12 *", TZ: DisplayZone, Description: "全年績效、持股檢討、來年配置", Category: CategoryOther},
}
