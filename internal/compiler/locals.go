package compiler

import "github.com/kristofer/cloxvm/internal/value"

const maxLocals = 256
const maxUpvalues = 256

func (p *Parser) beginScope() { p.fn.scopeDepth++ }

func (p *Parser) endScope() {
	p.fn.scopeDepth--
	fs := p.fn
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.scopeDepth {
		last := fs.locals[len(fs.locals)-1]
		if last.isCaptured {
			p.emitOp(value.OpCloseUpvalue)
		} else {
			p.emitOp(value.OpPop)
		}
		fs.locals = fs.locals[:len(fs.locals)-1]
	}
}

// resolveLocal looks up name among the current function's locals,
// innermost scope first, returning its stack slot.
func (fs *funcScope) resolveLocal(name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i, true
		}
	}
	return -1, false
}

// addUpvalue records (or reuses) a capture descriptor on fs, returning
// its index; parallel to fs.function.Upvalues.
func (fs *funcScope) addUpvalue(index int, isLocal bool) int {
	for i, uv := range fs.function.Upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	fs.function.Upvalues = append(fs.function.Upvalues, value.UpvalueDescriptor{IsLocal: isLocal, Index: index})
	return len(fs.function.Upvalues) - 1
}

// resolveUpvalue walks outward from fs looking for name in an
// enclosing function's locals or upvalues, threading capture
// descriptors through every intervening function the way the
// reference compiler's resolveUpvalue does.
func (p *Parser) resolveUpvalue(fs *funcScope, name string) (int, bool) {
	if fs.enclosing == nil {
		return -1, false
	}
	if slot, ok := fs.enclosing.resolveLocal(name); ok {
		fs.enclosing.locals[slot].isCaptured = true
		return fs.addUpvalue(slot, true), true
	}
	if idx, ok := p.resolveUpvalue(fs.enclosing, name); ok {
		return fs.addUpvalue(idx, false), true
	}
	return -1, false
}

func (p *Parser) addLocal(name string) {
	if len(p.fn.locals) >= maxLocals {
		p.error("too many local variables in one function")
		return
	}
	for i := len(p.fn.locals) - 1; i >= 0; i-- {
		l := p.fn.locals[i]
		if l.depth != -1 && l.depth < p.fn.scopeDepth {
			break
		}
		if l.name == name {
			p.error("variable with this name already declared in this scope")
		}
	}
	p.fn.locals = append(p.fn.locals, localVar{name: name, depth: -1})
}

func (p *Parser) markInitialized() {
	if p.fn.scopeDepth == 0 {
		return
	}
	p.fn.locals[len(p.fn.locals)-1].depth = p.fn.scopeDepth
}

// declareVariable registers the variable named by p.previous in the
// current scope; at global scope declarations are resolved at
// runtime by name, so there is nothing to do here.
func (p *Parser) declareVariable(name string) {
	if p.fn.scopeDepth == 0 {
		return
	}
	p.addLocal(name)
}
