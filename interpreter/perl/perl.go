// Package perl provides the Perl interpreter adapter for the WASI sandbox.
package perl

// chdirPrologue switches to the directory given as the first argument, then
// runs the script named by the second with the remaining arguments.
const chdirPrologue = `my $d = shift @ARGV; chdir $d or die "chdir $d: $!\n"; $0 = shift @ARGV; do $0; die $@ if $@;`

// Perl implements sandbox.Interpreter for a WASI build of perl.
type Perl struct {
	resource string
	includes []string
}

type Option func(*Perl)

// WithResource overrides the module file name, default "perl.wasm".
func WithResource(name string) Option {
	return func(p *Perl) {
		p.resource = name
	}
}

// WithIncludeDirs replaces the @INC directories passed with -I, default "/".
func WithIncludeDirs(dirs ...string) Option {
	return func(p *Perl) {
		p.includes = dirs
	}
}

func New(opts ...Option) *Perl {
	p := &Perl{resource: "perl.wasm", includes: []string{"/"}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns "perl".
func (p *Perl) Name() string {
	return "perl"
}

func (p *Perl) Resource() string {
	return p.resource
}

// Args returns the interpreter argv. Without a working directory the script
// runs directly; with one, the prologue changes into it first so relative
// \input paths resolve against it.
func (p *Perl) Args(argv []string, cwd string) []string {
	args := make([]string, 0, len(argv)+len(p.includes)+4)
	args = append(args, "perl")
	for _, dir := range p.includes {
		args = append(args, "-I"+dir)
	}
	if cwd == "" {
		return append(args, argv...)
	}
	args = append(args, "-e", chdirPrologue, cwd)
	return append(args, argv...)
}
