package logging

// Convenience wrappers expose one helper per logging category (Boot,
// Store, Risk, ...) so callers don't need Get(Category) at every call
// site.

func Boot(format string, args ...interface{})       { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{})   { Get(CategoryBoot).Debug(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

func Risk(format string, args ...interface{})      { Get(CategoryRisk).Info(format, args...) }
func RiskDebug(format string, args ...interface{}) { Get(CategoryRisk).Debug(format, args...) }

func Decision(format string, args ...interface{})      { Get(CategoryDecision).Info(format, args...) }
func DecisionDebug(format string, args ...interface{}) { Get(CategoryDecision).Debug(format, args...) }

func Applicator(format string, args ...interface{})      { Get(CategoryApplicator).Info(format, args...) }
func ApplicatorDebug(format string, args ...interface{}) { Get(CategoryApplicator).Debug(format, args...) }

func Scheduler(format string, args ...interface{})      { Get(CategoryScheduler).Info(format, args...) }
func SchedulerDebug(format string, args ...interface{}) { Get(CategoryScheduler).Debug(format, args...) }

func Executor(format string, args ...interface{})      { Get(CategoryExecutor).Info(format, args...) }
func ExecutorDebug(format string, args ...interface{}) { Get(CategoryExecutor).Debug(format, args...) }

func SelfHeal(format string, args ...interface{})      { Get(CategorySelfHeal).Info(format, args...) }
func SelfHealDebug(format string, args ...interface{}) { Get(CategorySelfHeal).Debug(format, args...) }

func EventBus(format string, args ...interface{})      { Get(CategoryEventBus).Info(format, args...) }
func EventBusDebug(format string, args ...interface{}) { Get(CategoryEventBus).Debug(format, args...) }

func Governor(format string, args ...interface{})      { Get(CategoryGovernor).Info(format, args...) }
func GovernorDebug(format string, args ...interface{}) { Get(CategoryGovernor).Debug(format, args...) }

func CLI(format string, args ...interface{})      { Get(CategoryCLI).Info(format, args...) }
func CLIDebug(format string, args ...interface{}) { Get(CategoryCLI).Debug(format, args...) }
