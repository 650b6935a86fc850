package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/orb-framework/orb-sub002/internal/compiler"
	"github.com/orb-framework/orb-sub002/internal/schema"
)

// LoadResult contains the schemas loaded from a directory.
type LoadResult struct {
	Registry  *schema.Registry
	Warnings  []compiler.CycleWarning // shortcut loops; the registry still loads
	CUEValue  cue.Value               // The raw CUE value for additional processing
	FileCount int                     // Number of CUE files found
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Details any       // validation errors, when Code is ErrCodeInvalid
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchemas loads, compiles and validates the CUE schemas in dir.
func LoadSchemas(dir string) (*LoadResult, error) {
	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schemas directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schemas directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	reg, err := compiler.CompileRegistry(value)
	if err != nil {
		return nil, convertCompileError(err)
	}

	return &LoadResult{
		Registry:  reg,
		Warnings:  compiler.AnalyzeShortcuts(reg),
		CUEValue:  value,
		FileCount: len(cueFiles),
	}, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		return &LoadError{
			Code:    ErrCodeInvalid,
			Message: fmt.Sprintf("%d schema link error(s)", len(verrs)),
			Details: []compiler.ValidationError(verrs),
		}
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeCompile,
			Message: err.Error(),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeReadFailed  = "E007" // Input file read error

	ErrCodeCompile = "E010" // Schema declaration does not compile
	ErrCodeInvalid = "E011" // Schema links do not validate

	ErrCodeQuery    = "E020" // Query does not decode
	ErrCodeExpand   = "E021" // Query does not expand
	ErrCodeSQL      = "E022" // Query does not compile to SQL
	ErrCodeRecords  = "E023" // Records file does not parse
	ErrCodeScenario = "E030" // Scenario fails to load or run
)

// loadFailure maps a loader error to the exit code and error code to
// report. Missing paths are usage errors; broken schemas are failures.
func loadFailure(err error) (int, string) {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		return ExitFailure, ErrCodeGeneric
	}
	switch loadErr.Code {
	case ErrCodeNotFound, ErrCodeNoFiles:
		return ExitCommandError, loadErr.Code
	default:
		return ExitFailure, loadErr.Code
	}
}
