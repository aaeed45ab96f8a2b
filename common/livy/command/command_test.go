package command_test

import (
	"errors"

	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/livy/command"
	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Command", func() {
	It("will run code verbatim against any kind of session", func() {
		cmd := command.NewCommand("print(1)")

		for _, kind := range []livy.Kind{livy.KindSpark, livy.KindPySpark, livy.KindSparkR, livy.KindSQL} {
			code, err := cmd.Code(kind)
			Expect(err).To(BeNil())
			Expect(code).To(Equal("print(1)"))
		}
	})

	It("will reject empty code", func() {
		_, err := command.NewCommand(" \n\t").Code(livy.KindSpark)
		Expect(errors.Is(err, livy.ErrBadConfiguration)).To(BeTrue())
	})

	It("will return text/plain output as text", func() {
		result := command.NewCommand("1+1").ParseOutput(&livy.StatementOutput{
			Status: "ok",
			Data:   map[string]interface{}{livy.MimeTextPlain: "2"},
		})

		Expect(result.Success).To(BeTrue())
		Expect(result.Type).To(Equal(livy.OutputText))
		Expect(result.Text).To(Equal("2"))
		Expect(result.Message()).To(Equal("2"))
	})

	It("will return an error result for an exception", func() {
		result := command.NewCommand("1/0").ParseOutput(&livy.StatementOutput{
			Status:    "error",
			Ename:     "ZeroDivisionError",
			Evalue:    "division by zero",
			Traceback: []string{"Traceback (most recent call last):\n", "ZeroDivisionError: division by zero\n"},
		})

		Expect(result.Success).To(BeFalse())
		Expect(result.Type).To(Equal(livy.OutputError))
		Expect(result.Error).To(HavePrefix("ZeroDivisionError: division by zero\nTraceback"))
	})

	It("will return the tabular output of sql sessions as a table", func() {
		result := command.NewCommand("SELECT 1").ParseOutput(&livy.StatementOutput{
			Status: "ok",
			Data: map[string]interface{}{
				livy.MimeApplicationJson: map[string]interface{}{
					"schema": map[string]interface{}{
						"fields": []interface{}{
							map[string]interface{}{"name": "id", "type": "integer"},
							map[string]interface{}{"name": "name", "type": "string"},
						},
					},
					"data": []interface{}{
						[]interface{}{1.0, "a"},
						[]interface{}{2.0, "b"},
					},
				},
			},
		})

		Expect(result.Success).To(BeTrue())
		Expect(result.Type).To(Equal(livy.OutputTable))
		Expect(result.Table.Columns).To(Equal([]string{"id", "name"}))
		Expect(result.Table.Rows).To(Equal([]map[string]interface{}{
			{"id": int64(1), "name": "a"},
			{"id": int64(2), "name": "b"},
		}))
	})

	It("will return other application/json output as JSON text", func() {
		result := command.NewCommand("x").ParseOutput(&livy.StatementOutput{
			Status: "ok",
			Data:   map[string]interface{}{livy.MimeApplicationJson: []interface{}{1.0, 2.0}},
		})

		Expect(result.Success).To(BeTrue())
		Expect(result.Text).To(Equal("[1,2]"))
	})

	It("will describe output of other types", func() {
		result := command.NewCommand("plot()").ParseOutput(&livy.StatementOutput{
			Status: "ok",
			Data:   map[string]interface{}{"image/png": "iVBORw0KGgo="},
		})

		Expect(result.Text).To(Equal("<image/png output>"))

		result = command.NewCommand("x = 1").ParseOutput(&livy.StatementOutput{Status: "ok"})
		Expect(result.Success).To(BeTrue())
		Expect(result.Text).To(BeEmpty())
	})
})

var _ = Describe("SQLQuery", func() {
	var options command.SamplingOptions

	BeforeEach(func() {
		options = command.DefaultSamplingOptions()
		options.MaxRows = 10
	})

	Context("Generating code", func() {
		It("will generate code for pyspark sessions", func() {
			code, err := command.NewSQLQuery("SELECT * FROM t", options).Code(livy.KindPySpark)
			Expect(err).To(BeNil())
			Expect(code).To(Equal(`for livy_notebook_row in spark.sql(u"""SELECT * FROM t """).toJSON().take(10): print(livy_notebook_row)`))

			options.Method = command.SampleRandom
			options.Fraction = decimal.NewFromFloat(0.25)
			options.MaxRows = -1
			code, err = command.NewSQLQuery("SELECT * FROM t", options).Code(livy.KindPySpark)
			Expect(err).To(BeNil())
			Expect(code).To(Equal(`for livy_notebook_row in spark.sql(u"""SELECT * FROM t """).toJSON().sample(False, 0.25).collect(): print(livy_notebook_row)`))
		})

		It("will generate code for scala sessions", func() {
			code, err := command.NewSQLQuery("SELECT * FROM t", options).Code(livy.KindSpark)
			Expect(err).To(BeNil())
			Expect(code).To(Equal(`spark.sql("""SELECT * FROM t""").toJSON.take(10).foreach(println)`))

			options.Method = command.SampleRandom
			options.MaxRows = -1
			code, err = command.NewSQLQuery("SELECT * FROM t", options).Code(livy.KindSpark)
			Expect(err).To(BeNil())
			Expect(code).To(Equal(`spark.sql("""SELECT * FROM t""").toJSON.sample(false, 0.1).collect.foreach(println)`))
		})

		It("will generate code for sparkr sessions", func() {
			code, err := command.NewSQLQuery(`SELECT "a" FROM t`, options).Code(livy.KindSparkR)
			Expect(err).To(BeNil())
			Expect(code).To(Equal(`for (livy_notebook_row in collect(toJSON(limit(sql("SELECT \"a\" FROM t"), 10)))$value) { cat(livy_notebook_row, "\n") }`))

			options.Method = command.SampleRandom
			code, err = command.NewSQLQuery("SELECT 1", options).Code(livy.KindSparkR)
			Expect(err).To(BeNil())
			Expect(code).To(ContainSubstring(`limit(sample(sql("SELECT 1"), FALSE, 0.1), 10)`))
		})

		It("will send the query itself to sql sessions", func() {
			code, err := command.NewSQLQuery("  SHOW TABLES  ", options).Code(livy.KindSQL)
			Expect(err).To(BeNil())
			Expect(code).To(Equal("SHOW TABLES"))
		})

		It("will reject invalid queries and options", func() {
			_, err := command.NewSQLQuery("  ", options).Code(livy.KindSpark)
			Expect(errors.Is(err, livy.ErrBadConfiguration)).To(BeTrue())

			_, err = command.NewSQLQuery("SELECT 1", options).Code(livy.Kind("shell"))
			Expect(errors.Is(err, livy.ErrBadConfiguration)).To(BeTrue())

			options.Method = command.SampleRandom
			options.Fraction = decimal.NewFromFloat(1.5)
			_, err = command.NewSQLQuery("SELECT 1", options).Code(livy.KindSpark)
			Expect(errors.Is(err, livy.ErrBadConfiguration)).To(BeTrue())

			options.Method = "first"
			_, err = command.NewSQLQuery("SELECT 1", options).Code(livy.KindSpark)
			Expect(errors.Is(err, livy.ErrBadConfiguration)).To(BeTrue())
		})
	})

	Context("Parsing output", func() {
		text := func(s string) *livy.StatementOutput {
			return &livy.StatementOutput{Status: "ok", Data: map[string]interface{}{livy.MimeTextPlain: s}}
		}

		It("will build a table from JSON records", func() {
			result := command.NewSQLQuery("SELECT * FROM t", options).ParseOutput(text(
				`{"name":"a","count":1,"ratio":0.5}` + "\n" +
					`{"name":"b","count":2,"extra":null}` + "\n"))

			Expect(result.Success).To(BeTrue())
			Expect(result.Type).To(Equal(livy.OutputTable))
			Expect(result.Table.Columns).To(Equal([]string{"name", "count", "ratio", "extra"}))
			Expect(result.Table.Len()).To(Equal(2))
			Expect(result.Table.Rows[0]).To(Equal(map[string]interface{}{"name": "a", "count": int64(1), "ratio": 0.5}))
			Expect(result.Table.Rows[1]).To(HaveKeyWithValue("count", int64(2)))
			Expect(result.Table.Rows[1]).To(HaveKey("extra"))
			Expect(result.Table.Rows[1]["extra"]).To(BeNil())
		})

		It("will keep nested values", func() {
			result := command.NewSQLQuery("SELECT * FROM t", options).ParseOutput(text(`{"tags":["x","y"],"point":{"x":1}}`))

			Expect(result.Success).To(BeTrue())
			Expect(result.Table.Rows[0]["tags"]).To(Equal([]interface{}{"x", "y"}))
			Expect(result.Table.Rows[0]["point"]).To(Equal(map[string]interface{}{"x": int64(1)}))
		})

		It("will keep numbers as text when coercion is disabled", func() {
			options.Coerce = false
			result := command.NewSQLQuery("SELECT * FROM t", options).ParseOutput(text(`{"count":12345678901234567890}`))

			Expect(result.Success).To(BeTrue())
			Expect(result.Table.Rows[0]["count"]).To(Equal("12345678901234567890"))
		})

		It("will return an empty table for an empty result", func() {
			result := command.NewSQLQuery("SELECT * FROM t WHERE false", options).ParseOutput(text(""))

			Expect(result.Success).To(BeTrue())
			Expect(result.Table.Columns).To(BeEmpty())
			Expect(result.Table.Len()).To(Equal(0))
		})

		It("will truncate the table to the maximum number of rows", func() {
			options.MaxRows = 2
			result := command.NewSQLQuery("SELECT * FROM t", options).ParseOutput(text("{\"i\":1}\n{\"i\":2}\n{\"i\":3}"))

			Expect(result.Table.Len()).To(Equal(2))
		})

		It("will fail on output that is not made of records", func() {
			result := command.NewSQLQuery("SELECT * FROM t", options).ParseOutput(text("Traceback: something went wrong"))

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("could not parse the result of the query"))
		})

		It("will return the exception raised by the query", func() {
			result := command.NewSQLQuery("SELECT * FROM missing", options).ParseOutput(&livy.StatementOutput{
				Status: "error",
				Ename:  "AnalysisException",
				Evalue: "Table or view not found: missing",
			})

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(Equal("AnalysisException: Table or view not found: missing"))
		})

		It("will format numbers from sql sessions as text when coercion is disabled", func() {
			options.Coerce = false
			result := command.NewSQLQuery("SELECT 1.5", options).ParseOutput(&livy.StatementOutput{
				Status: "ok",
				Data: map[string]interface{}{
					livy.MimeApplicationJson: map[string]interface{}{
						"schema": map[string]interface{}{"fields": []interface{}{map[string]interface{}{"name": "x"}}},
						"data":   []interface{}{[]interface{}{1.5}, []interface{}{3.0}},
					},
				},
			})

			Expect(result.Success).To(BeTrue())
			Expect(result.Table.Rows).To(Equal([]map[string]interface{}{{"x": "1.5"}, {"x": "3"}}))
		})
	})

	It("will recognize statements that list or switch databases", func() {
		Expect(command.IsRestrictedSQL("SHOW DATABASES")).To(BeTrue())
		Expect(command.IsRestrictedSQL("  show schemas like 'a*'")).To(BeTrue())
		Expect(command.IsRestrictedSQL("use analytics")).To(BeTrue())
		Expect(command.IsRestrictedSQL("USE\n analytics")).To(BeTrue())

		Expect(command.IsRestrictedSQL("SHOW TABLES")).To(BeFalse())
		Expect(command.IsRestrictedSQL("SELECT * FROM users")).To(BeFalse())
		Expect(command.IsRestrictedSQL("SHOW DATABASESX")).To(BeFalse())
	})
})

var _ = Describe("SamplingOptions", func() {
	It("will be valid by default", func() {
		options := command.DefaultSamplingOptions()
		Expect(options.Validate()).To(Succeed())
		Expect(options.Method).To(Equal(command.SampleTake))
		Expect(options.MaxRows).To(Equal(command.DefaultMaxRows))
		Expect(options.AllRows()).To(BeFalse())
	})

	It("will only check the fraction when sampling randomly", func() {
		options := command.DefaultSamplingOptions()
		options.Fraction = decimal.NewFromInt(-1)
		Expect(options.Validate()).To(Succeed())

		options.Method = command.SampleRandom
		Expect(options.Validate()).ToNot(Succeed())

		options.Fraction = decimal.NewFromInt(1)
		Expect(options.Validate()).To(Succeed())
	})
})
