package parser

// ifTag implements `{% if cond %}`. A nested else tag splits the body
// into two branches.
type ifTag struct{}

func (ifTag) Name() string      { return "if" }
func (ifTag) RequiresEnd() bool { return true }

func (t ifTag) Parse(tp *TagParse) error {
	if len(tp.NonWhitespace()) == 0 {
		return tp.Errorf("missing condition")
	}
	if err := tp.Run(); err != nil {
		return err
	}
	return tp.EndArg()
}

func (t ifTag) Compile(tc *TagCompile) (Node, error) {
	return &IfNode{
		Cond: tc.Frame.Args[0],
		Then: tc.Frame.Children,
		Else: tc.Frame.Else,
		line: tc.Frame.Line,
	}, nil
}

// elseTag flips the innermost open conditional into its alternative
// branch. It takes no arguments and emits no node of its own.
type elseTag struct{}

func (elseTag) Name() string      { return "else" }
func (elseTag) RequiresEnd() bool { return false }

func (t elseTag) Parse(tp *TagParse) error {
	if len(tp.NonWhitespace()) > 0 {
		return tp.Errorf("takes no arguments")
	}
	top := tp.Blocks.Top()
	if top == nil || top.Name != "if" {
		return tp.Errorf("not directly inside an open if tag")
	}
	if err := top.BeginElse(); err != nil {
		return tp.Errorf("%v", err)
	}
	return nil
}

func (t elseTag) Compile(tc *TagCompile) (Node, error) {
	return nil, nil
}
