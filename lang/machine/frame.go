package machine

// CallFrame is a single activation record on the call stack.
type CallFrame struct {
	ReturnAddress      int
	StackPointerAtCall int
	FrameBase          int
}

// TryFrame is a single entry on the try stack, recorded by ENTER_TRY.
type TryFrame struct {
	EnterAddress        int
	Handler             int
	StackPointerAtEnter int
}
