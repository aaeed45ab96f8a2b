package utils_test

import (
	"os"
	"time"

	"github.com/scusemua/livy-notebook/common/utils"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Utils", func() {
	Context("Lists", func() {
		It("will parse fractional seconds", func() {
			durations, err := utils.ParseSecondsList(" 0.2, 0.5,1,,3 ")
			Expect(err).To(BeNil())
			Expect(durations).To(Equal([]time.Duration{200 * time.Millisecond, 500 * time.Millisecond, time.Second, 3 * time.Second}))

			durations, err = utils.ParseSecondsList("")
			Expect(err).To(BeNil())
			Expect(durations).To(BeEmpty())

			_, err = utils.ParseSecondsList("1,x")
			Expect(err).ToNot(BeNil())

			_, err = utils.ParseSecondsList("-1")
			Expect(err).ToNot(BeNil())
		})

		It("will parse integers", func() {
			values, err := utils.ParseIntList("500, 502,503")
			Expect(err).To(BeNil())
			Expect(values).To(Equal([]int{500, 502, 503}))

			_, err = utils.ParseIntList("500,5o2")
			Expect(err).ToNot(BeNil())
		})

		It("will parse key=value pairs", func() {
			values, err := utils.ParseKeyValueList("a=1, b = 2,c=x=y,d=")
			Expect(err).To(BeNil())
			Expect(values).To(Equal(map[string]string{"a": "1", "b": "2", "c": "x=y", "d": ""}))

			_, err = utils.ParseKeyValueList("a=1,b")
			Expect(err).ToNot(BeNil())

			_, err = utils.ParseKeyValueList("=1")
			Expect(err).ToNot(BeNil())
		})
	})

	It("will read environment variables with a default", func() {
		Expect(os.Setenv("LIVY_NOTEBOOK_UTILS_TEST", "set")).To(Succeed())
		DeferCleanup(os.Unsetenv, "LIVY_NOTEBOOK_UTILS_TEST")

		Expect(utils.GetEnv("LIVY_NOTEBOOK_UTILS_TEST", "default")).To(Equal("set"))
		Expect(utils.GetEnv("LIVY_NOTEBOOK_UTILS_TEST_UNSET", "default")).To(Equal("default"))
	})

	It("will style statuses by severity", func() {
		Expect(utils.StatusStyle("idle")).To(Equal(utils.GreenStyle))
		Expect(utils.StatusStyle("busy")).To(Equal(utils.LightBlueStyle))
		Expect(utils.StatusStyle("starting")).To(Equal(utils.YellowStyle))
		Expect(utils.StatusStyle("dead")).To(Equal(utils.RedStyle))
		Expect(utils.StatusStyle("???")).To(Equal(utils.GrayStyle))
	})
})
