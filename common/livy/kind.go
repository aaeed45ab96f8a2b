package livy

import "fmt"

// Kind is the session kind understood by the gateway.
type Kind string

const (
	KindSpark   Kind = "spark"
	KindPySpark Kind = "pyspark"
	KindSparkR  Kind = "sparkr"
	KindSQL     Kind = "sql"
)

// Language is the front-end language a session is created for.
//
// Several languages may map onto the same Kind (python and python3 both use pyspark).
type Language string

const (
	LangScala   Language = "scala"
	LangPython  Language = "python"
	LangPython3 Language = "python3"
	LangR       Language = "r"
	LangSQL     Language = "sql"
)

func (k Kind) String() string {
	return string(k)
}

// Valid returns true if k is one of the known session kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSpark, KindPySpark, KindSparkR, KindSQL:
		return true
	default:
		return false
	}
}

func (l Language) String() string {
	return string(l)
}

// LanguageToKind returns the session Kind used for the given Language.
//
// The dedicated "pyspark3" kind no longer exists on the gateway, so python3 also maps to pyspark.
func LanguageToKind(language Language) (Kind, error) {
	switch language {
	case LangScala:
		return KindSpark, nil
	case LangPython, LangPython3:
		return KindPySpark, nil
	case LangR:
		return KindSparkR, nil
	case LangSQL:
		return KindSQL, nil
	default:
		return "", NewBadConfigurationError(fmt.Sprintf("cannot get session kind for language \"%s\"", language))
	}
}
