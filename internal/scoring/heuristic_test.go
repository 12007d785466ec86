package scoring_test

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"mbti-story/internal/domain"
	"mbti-story/internal/scoring"
)

func TestEstimateAxes(t *testing.T) {
	convey.Convey("Given a transcript with introverted and concrete cues", t, func() {
		transcript := "休日は家で読書をして過ごします。具体的な手順があると安心します。気持ちを大切にしていて、予定は柔軟に変えます。"
		axes := scoring.EstimateAxes(transcript)

		convey.Convey("Then it leans to ISFP", func() {
			convey.So(axes.Type(), convey.ShouldEqual, "ISFP")
		})
	})

	convey.Convey("Given cues that cancel each other out", t, func() {
		axes := scoring.EstimateAxes("友達と話すのも好きだけど一人の時間も大事")

		convey.Convey("Then the tie resolves to E", func() {
			convey.So(axes.EI, convey.ShouldEqual, "E")
		})
	})

	convey.Convey("Given an empty transcript", t, func() {
		axes := scoring.EstimateAxes("")

		convey.Convey("Then every axis takes its default pole", func() {
			convey.So(axes.Type(), convey.ShouldEqual, "ENTJ")
			convey.So(axes.Complete(), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a repeated keyword", t, func() {
		once := scoring.EstimateAxes("一人")
		many := scoring.EstimateAxes("一人 一人 一人 友")

		convey.Convey("Then each pattern counts only once", func() {
			convey.So(once.EI, convey.ShouldEqual, "I")
			convey.So(many.EI, convey.ShouldEqual, "E")
		})
	})
}

func TestParseAxes(t *testing.T) {
	convey.Convey("Given model output with a JSON object", t, func() {
		axes, ok := scoring.ParseAxes("結果です:\n```json\n{\"E/I\":\"i\",\"S/N\":\"N\",\"T/F\":\"F\",\"J/P\":\"P\"}\n```")

		convey.Convey("Then the axes are accepted", func() {
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(axes, convey.ShouldResemble, domain.Axes{EI: "I", SN: "N", TF: "F", JP: "P"})
		})
	})

	convey.Convey("Given output with a missing or wrong axis", t, func() {
		_, missing := scoring.ParseAxes(`{"E/I":"E","S/N":"N","T/F":"T"}`)
		_, wrong := scoring.ParseAxes(`{"E/I":"E","S/N":"T","T/F":"T","J/P":"J"}`)
		_, none := scoring.ParseAxes("I think you are INFP")

		convey.Convey("Then parsing fails", func() {
			convey.So(missing, convey.ShouldBeFalse)
			convey.So(wrong, convey.ShouldBeFalse)
			convey.So(none, convey.ShouldBeFalse)
		})
	})
}
