package parser

type parseError struct {
	msg string
}

func (e *parseError) Error() string { return e.msg }

func (e *parseError) Class() string { return "ParseError" }

// ErrParse marks pages whose markup could not be turned into a catalog.
var ErrParse error = &parseError{msg: "parse error"}
