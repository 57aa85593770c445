package agent

// Replies the dispatcher produces without the model.
const (
	apologyPrefix = "抱歉，处理您的请求时出现了问题: "

	clarifyItinerary = "抱歉，我还不知道您的目的地和出行日期。请告诉我您想去哪里以及出发和返回的日期（例如：我想去杭州旅游，2026-05-01至2026-05-03），我再为您规划行程。"
	clarifyPacking   = "抱歉，我还不知道您的目的地和出行日期。请先告诉我您要去哪里以及具体日期，我再为您生成行李清单。"
	clarifySocial    = "抱歉，我无法确定您的旅行目的地。请提供更多旅行信息或上传一张旅行照片，以便生成社交媒体内容。"
)
