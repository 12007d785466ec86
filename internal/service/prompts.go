package service

import (
	"fmt"

	"mbti-story/internal/domain"
)

// axisQuestions son las preguntas fijas del quiz conversacional, una por ronda.
var axisQuestions = map[domain.Axis]string{
	domain.AxisEI: "ふだんエネルギーを回復するとき、ひとりの時間と人と過ごす時間のどちらが多いですか？",
	domain.AxisSN: "新しいことを学ぶとき、具体例から理解しますか？それとも概念や可能性から考える方が好きですか？",
	domain.AxisTF: "大事な選択では、論理や公平性と、気持ちや人間関係のどちらをより重視しますか？",
	domain.AxisJP: "予定は事前に決めて進めたいですか？それとも状況に合わせて柔軟に動くのが好きですか？",
}

const questionPrefix = "質問："

const reflectPromptTemplate = `あなたは臨床心理の知見を持つ穏やかなカウンセラーです。ユーザーの文脈に寄り添い、反射（オウム返し）や短い相づちで共感のみを伝えてください。
- 評価しない
- 専門用語を使わない
- 質問はしない（共感のみ）
- 一文、50〜80文字程度
日本語で返答。

ユーザー: %s`

const axesPromptTemplate = `あなたは心理分析アシスタントです。以下の会話記録から、ユーザーのMBTIを推定してください。

会話記録:
%s

各軸(E/I, S/N, T/F, J/P)を1つずつ判定し、簡単な理由は書かずに、次のJSONのみを厳密に出力してください:
{ "E/I": "E or I", "S/N": "S or N", "T/F": "T or F", "J/P": "J or P" }`

const featuresPromptTemplate = `あなたは心理アナリストです。タイプ%sの一般的な特徴を日本語で3〜5行で箇条書きで説明してください。専門用語は避け、誰にでも分かる言葉にしてください。`

const reasonsPromptTemplate = `あなたは心理アナリストです。次の会話記録から、%s と判断した根拠を3点、分かりやすい日本語で説明してください。専門用語は避けます。
会話:
%s`

const advicePromptTemplate = `あなたは心理カウンセラーです。タイプ%sの人に向けて、日常で役立つ具体的なアドバイスを日本語で4〜6行で提示してください。実践的で優しい言葉にしてください。`

const storyPromptTemplate = `あなたは詩人でもある物語作家です。読者の心に余韻を残す日本語の短編を作ってください。
前提: 主人公の性格タイプは %s。
要件:
- 詩的で趣のある語り口
- 感情の余白と静かな比喩を織り込む
- 一文のリズムに緩急をつけ、呼吸を感じさせる
- 読みやすさを損なわず、過度な難語は避ける
- 200〜300文字程度`

// Segundo intento con otra escena para evitar repetir la misma salida degradada.
const storyRetryPromptTemplate = `あなたは短編小説の書き手です。性格タイプ %s の主人公が、ある季節の一日に小さな選択をする場面を日本語で描いてください。
要件:
- 情景描写から始める
- 主人公の内面の揺れと、静かな決意を描く
- 説明や解説は書かず、物語の本文のみ
- 200〜300文字程度`

const insightsPromptTemplate = `あなたは心理カウンセラーです。タイプ%sの人について、強み・注意点・アドバイスをそれぞれ2〜3文の日本語でまとめてください。
次のJSONのみを出力してください:
{"strengths": "...", "cautions": "...", "advice": "..."}
会話:
%s`

const detailSummaryPromptTemplate = `あなたは心理分析AIです。以下の性格データを100字程度で日本語要約してください。
MBTI:%s
BigFive:%s
補助:%s
自由記述:%s`

const detailStoryPromptTemplate = `あなたは心理小説家です。以下の性格データをもとに、その人の性格や価値観を象徴する短編物語を生成してください。
MBTI:%s
BigFive:%s
補助:%s
自由記述:%s
文字数:600〜800字。`

const detailAdvicePromptTemplate = `あなたは心理カウンセラーです。以下の性格データに沿って、本人が日々をより良く過ごすための具体的アドバイスを日本語で5〜8行で提案してください。専門用語は避け、やさしい口調で。
MBTI:%s
BigFive:%s
補助:%s
自由記述:%s`

const (
	featuresFallbackTemplate = "- %s の一般的な強みと傾向を分かりやすく表しました。\n- 想像力/計画性/論理/共感などのバランスが日常に現れます。"
	reasonsFallbackTemplate  = "- 会話に見られたキーワードや姿勢から、%s の傾向が読み取れました。"
	adviceFallback           = "- 小さな一歩を積み重ねて、あなたらしさを大切にする時間を確保しましょう。\n- 負担が大きいときはタスクを細かく分け、助けを求める練習も有効です。"
	genericStoryTemplate     = "ある日、あなたは自分の選択がどこから生まれるのかを見つめ直す。%s の気質が導くのは、焦らず、しかし確かに進む歩み。小さな決断の積み重ねが、あなたの物語を静かに前へ運んでいく。"

	detailStoryFallbackTemplate = "静かな午後、あなたは自分らしさをそっと確かめる。タイプ%sの傾向が、選ぶ言葉や歩幅に静かに表れる。小さな決断の積み重ねが、次の一歩をやさしく照らしていく。"
	detailAdviceFallback        = "- 小さな一歩を重ねる計画を作り、できたことを言葉にして残しましょう。\n- 不安が強い日は刺激を減らし、安心できる人や環境に頼ってOKです。"
)

const (
	defaultTitle   = "あなたらしさの物語"
	defaultSummary = "あなたの価値観と強みが物語に表れています。"
)

var typeTitles = map[string]string{
	"INFP": "理想を追う詩人",
	"INFJ": "洞察の導き手",
	"ENFP": "情熱の探求者",
	"ISTJ": "誠実な管理者",
}

var typeSummaries = map[string]string{
	"INFP": "洞察力が高く想像力に富み、価値観を大切にします。",
	"INFJ": "人と物事の本質を見抜き、静かな情熱で導きます。",
	"ENFP": "好奇心旺盛で可能性にワクワクし、周囲を鼓舞します。",
	"ISTJ": "秩序と責任感を重んじ、着実に物事を進めます。",
}

var typeStories = map[string]string{
	"INFP": "静かな朝、あなたはふと立ち止まり、自分の歩幅で進むことを選ぶ。遠回りに見える道の先で、小さな光が確かに息づいていることに気づく。誰かの期待ではなく、あなたの大切にしたいものへ手を伸ばしたとき、景色は少しだけ澄んで見えた。迷いも弱さも抱えたまま、それでも前へ進む。その静かな決意が、まだ言葉にならない物語をそっと温めていく。",
	"ISTJ": "書斎の机には、几帳面に並んだ手帳と鉛筆。計画通りに進む日々の中で、ふと予定外の誘いが届く。心は揺れるが、あなたは静かに立ち上がる。積み上げてきた信頼があるから、未知の一歩も揺るぎなく踏み出せる。",
	"ENFP": "混雑した街角、ひらめきは突然の春風のようにあなたの頬を撫でる。可能性の地図は折り目だらけでも、そこに描かれた線はどこまでも伸びていく。誰かの笑顔と新しい物語が、今日もあなたを連れ出す。",
	"INFJ": "夜更けのカフェ、灯りは穏やかに世界の輪郭を照らす。あなたは静かに、人の奥にある物語を聴く。言葉にならない願いを見つけたとき、そっと背中を押す風になる。",
}

// TitleFor devuelve el titulo del tipo o el generico.
func TitleFor(mbtiType string) string {
	if t, ok := typeTitles[mbtiType]; ok {
		return t
	}
	return defaultTitle
}

// SummaryFor devuelve el resumen del tipo o el generico.
func SummaryFor(mbtiType string) string {
	if s, ok := typeSummaries[mbtiType]; ok {
		return s
	}
	return defaultSummary
}

// FallbackStory es la historia determinista usada cuando ningun proveedor sirve.
func FallbackStory(mbtiType string) string {
	if s, ok := typeStories[mbtiType]; ok {
		return s
	}
	return fmt.Sprintf(genericStoryTemplate, mbtiType)
}
