package prompt

// Name identifies a stage prompt made of a system and a user template.
type Name string

const (
	Story      Name = "story"
	Design     Name = "design"
	Roles      Name = "roles"
	Worker     Name = "worker"
	CodeReview Name = "code-review"
	Security   Name = "security"
	Tests      Name = "tests"
	TestReview Name = "test-review"
	QA         Name = "qa"
)

// WorkerTask is the single template used to compose one role's task.
const WorkerTask = "worker-task.md"

// System returns the file name of the system template.
func (n Name) System() string { return string(n) + ".system.md" }

// User returns the file name of the user template.
func (n Name) User() string { return string(n) + ".md" }

var builtinTemplates = map[string]string{
	Story.System():      storySystem,
	Story.User():        storyUser,
	Design.System():     designSystem,
	Design.User():       designUser,
	Roles.System():      rolesSystem,
	Roles.User():        rolesUser,
	Worker.System():     workerSystem,
	Worker.User():       workerUser,
	WorkerTask:          workerTask,
	CodeReview.System(): codeReviewSystem,
	CodeReview.User():   codeReviewUser,
	Security.System():   securitySystem,
	Security.User():     securityUser,
	Tests.System():      testsSystem,
	Tests.User():        testsUser,
	TestReview.System(): testReviewSystem,
	TestReview.User():   testReviewUser,
	QA.System():         qaSystem,
	QA.User():           qaUser,
}

const storySystem = `You are an expert Agile coach specializing in user story creation.
Focus on creating comprehensive stories with error handling.
Each revision should improve upon the previous version.`

const storyUser = `Generate a detailed user story with:
1. User Story (As a [role], I want [feature], so that [benefit])
2. Acceptance Criteria (numbered list)
3. Error Handling Scenarios (must include):
   - System errors
   - User input errors
   - Network/resource errors
4. Definition of Done

Requirements: {{requirements}}
{{#if story_feedback}}

Previous Story:
{{previous_story}}

Feedback to address:
{{story_feedback}}

Revision Guidelines:
1. Address the feedback completely
2. Maintain existing good elements
3. Include specific error scenarios
4. Ensure measurable acceptance criteria
{{/if}}`

const designSystem = `You are a software architect creating clear, structured design documents.
Focus on practical, implementable designs.
Use markdown formatting for better readability.
Strictly follow the requested sections only.
Remove any sections mentioned in feedback.`

const designUser = `# Design Document Template

Create a detailed design document for these user stories:
{{user_story}}

## Important Rules
- Do not include any testing sections
- Do not include error handling unless explicitly requested
- Use markdown formatting
{{#if design_feedback}}

## Previous Feedback
{{design_feedback}}

Ensure all feedback is incorporated and remove any mentioned sections.
{{/if}}`

const rolesSystem = `You are a highly experienced software architect. Your task is to identify ONLY software development roles required to implement the system.
DO NOT include roles related to Testing, QA, Technical Writing, DevOps, Management, Project Management, Scrum Master, UX/UI, Product Owner, Business Analyst, or any non-development role.
Your response should ONLY include job titles related to hands-on coding and software development.`

const rolesUser = `Analyze the following design document:

{{design_doc}}

Identify ONLY the software development roles (Backend, Frontend, AI Engineer, Database Engineer, etc.) without listing any testing, documentation, or management roles.
Provide a structured list, one role per line, without explanations.`

const workerTask = `{{design_doc}}

Generate code for {{role}}
{{#if feedback}}

[Accumulated Feedback]: {{feedback}}
{{/if}}`

const workerSystem = `You are a {{role}} engineer. Generate optimized and structured code.`

const workerUser = `{{task}}`

const codeReviewSystem = `You are an expert software reviewer. Review code for correctness, efficiency, maintainability, and security.
Start your answer with a single line reading "approve" or "revise".
Keep the feedback extremely concise and clear.`

const codeReviewUser = `### Code Review {{batch_label}}
{{code}}
{{#if feedback}}

### Previous Feedback:
{{feedback}}
### Please consider this feedback while reviewing the code.
{{/if}}`

const securitySystem = `You are a cybersecurity expert. Analyze the given code for security vulnerabilities.
Start your answer with a single line reading "secure" or "fix".`

const securityUser = `Here is the generated code ({{batch_label}}):
{{code}}
{{#if feedback}}

### Previous Feedback:
{{feedback}}
### Ensure any identified vulnerabilities are mitigated.
{{/if}}

**Security Checks:**
- SQL Injection
- XSS (Cross-site scripting)
- Hardcoded Secrets
- Weak Authentication

**Response Format:**
- Decision: ('secure' or 'fix')
- Feedback: Bullet points explaining security risks and fixes, extremely concise and clear.`

const testsSystem = `You are a senior software engineer. Your task is to create structured unit test cases.`

const testsUser = `Generate structured test cases for the following code ({{batch_label}}):
{{code}}
{{#if test_feedback}}

Additionally, apply the following test case feedback from previous reviews:
{{test_feedback}}

Ensure missing test cases are added and existing ones are refined.
{{/if}}

**Instructions:**
Generate executable unit test cases for the above code using the conventions of its language. Include:
- Well-structured, named test functions
- Edge case coverage
- Error handling validation

Put the test code in fenced code blocks.`

const testReviewSystem = `You are a senior QA engineer. Your task is to review the generated test cases.
Start your answer with a single line reading "approve" or "revise".`

const testReviewUser = `Here are the test cases ({{batch_label}}):
{{test_cases}}

**Review Criteria:**
- Completeness (Do test cases cover all functionalities?)
- Correctness (Are expected results correct?)
- Edge Cases (Are boundary conditions tested?)
- Security (Do test cases validate security concerns?)

**Response Format:**
- Decision: ('approve' or 'revise')
- Feedback: Bullet points explaining necessary improvements, extremely concise and clear.`

const qaSystem = `You're a senior QA engineer running test suites on submitted code.
Start your answer with a single line reading "pass" or "fail".`

const qaUser = `Execute the following test cases on this code ({{batch_label}}) and report the result.

### Test Cases:
{{test_cases}}

### Code:
{{code}}
{{#if feedback}}

### Previous QA Feedback:
{{feedback}}

Ensure previous issues are re-validated in this batch.
{{/if}}

**Response Format:**
- Decision: ('pass' or 'fail')
- Feedback: Bullet points on failures or confirmations of success.`
