package oraq

import (
	"fmt"

	"github.com/oraq-io/oraq/internal/errors"
)

// OptionType identifies the kind of SubmitOption a given value carries.
type OptionType int

const (
	JobIDOpt OptionType = iota
	JobDataOpt
	LIFOOpt
)

// SubmitOption configures a single Submit call. See JobID, JobData, and
// LIFO.
type SubmitOption interface {
	String() string
	Type() OptionType
	Value() interface{}
}

type jobIDOption string

// JobID sets the job's id explicitly. If omitted, Submit generates a
// random one. The caller is responsible for uniqueness within the
// shared (prefix, id) namespace.
func JobID(id string) SubmitOption {
	return jobIDOption(id)
}

func (id jobIDOption) String() string     { return fmt.Sprintf("JobID(%q)", string(id)) }
func (id jobIDOption) Type() OptionType   { return JobIDOpt }
func (id jobIDOption) Value() interface{} { return string(id) }

type jobDataOption struct{ data interface{} }

// JobData attaches arbitrary caller data passed through to the job
// function. The coordinator and store never inspect it.
func JobData(data interface{}) SubmitOption {
	return jobDataOption{data: data}
}

func (o jobDataOption) String() string     { return fmt.Sprintf("JobData(%v)", o.data) }
func (o jobDataOption) Type() OptionType   { return JobDataOpt }
func (o jobDataOption) Value() interface{} { return o.data }

type lifoOption bool

// LIFO selects tail-insertion into the pending queue so this job is
// admitted ahead of jobs already waiting. Default is FIFO
// (head-insertion, admitted oldest-first).
func LIFO(enabled bool) SubmitOption {
	return lifoOption(enabled)
}

func (o lifoOption) String() string     { return fmt.Sprintf("LIFO(%t)", bool(o)) }
func (o lifoOption) Type() OptionType   { return LIFOOpt }
func (o lifoOption) Value() interface{} { return bool(o) }

// submitParams is the composed, validated result of a Submit call's
// options.
type submitParams struct {
	jobID   string
	jobData interface{}
	lifo    bool
}

// composeSubmitOptions merges user-provided SubmitOptions into defaults
// and validates them, mirroring the teacher's composeOptions.
func composeSubmitOptions(opts ...SubmitOption) (submitParams, error) {
	res := submitParams{}
	for _, opt := range opts {
		switch opt := opt.(type) {
		case jobIDOption:
			id := string(opt)
			if id == "" {
				return submitParams{}, &errors.ConfigError{Field: "jobId", Reason: "must not be empty when set"}
			}
			res.jobID = id
		case jobDataOption:
			res.jobData = opt.data
		case lifoOption:
			res.lifo = bool(opt)
		default:
			return submitParams{}, &errors.ConfigError{Field: "SubmitOption", Reason: fmt.Sprintf("unknown option type %T", opt)}
		}
	}
	return res, nil
}
