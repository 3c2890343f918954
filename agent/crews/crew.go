package crews

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/crewflow/types"
)

//go:embed definitions/engineering_team.yaml
var engineeringTeamYAML []byte

// Agent 定义执行任务的角色
type Agent struct {
	Name      string `yaml:"name" json:"name"`
	Role      string `yaml:"role" json:"role"`
	Goal      string `yaml:"goal" json:"goal"`
	Backstory string `yaml:"backstory,omitempty" json:"backstory,omitempty"`
}

// Task 是流水线中的一个命名步骤，顺序即声明顺序
type Task struct {
	Name           string `yaml:"name" json:"name"`
	Description    string `yaml:"description" json:"description"`
	ExpectedOutput string `yaml:"expected_output" json:"expected_output"`
	Agent          string `yaml:"agent,omitempty" json:"agent,omitempty"`
}

// Crew 是有序任务列表及其角色定义
type Crew struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Agents      []Agent `yaml:"agents,omitempty" json:"agents,omitempty"`
	Tasks       []Task  `yaml:"tasks" json:"tasks"`
}

// NewCrew 创建并校验流水线
func NewCrew(name string, tasks []Task, agents ...Agent) (*Crew, error) {
	c := &Crew{
		Name:   name,
		Agents: append([]Agent(nil), agents...),
		Tasks:  append([]Task(nil), tasks...),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate 校验名称非空、至少一个任务、任务名唯一且引用的角色存在
func (c *Crew) Validate() error {
	if c == nil {
		return types.InvalidArgument("crew is nil")
	}
	if strings.TrimSpace(c.Name) == "" {
		return types.InvalidArgument("crew name is required")
	}
	if len(c.Tasks) == 0 {
		return types.InvalidArgument("crew %q has no tasks", c.Name)
	}

	agents := make(map[string]struct{}, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return types.InvalidArgument("crew %q: agent name is required", c.Name)
		}
		if _, dup := agents[a.Name]; dup {
			return types.InvalidArgument("crew %q: duplicate agent %q", c.Name, a.Name)
		}
		agents[a.Name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(c.Tasks))
	for i, t := range c.Tasks {
		if strings.TrimSpace(t.Name) == "" {
			return types.InvalidArgument("crew %q: task #%d has no name", c.Name, i)
		}
		if _, dup := seen[t.Name]; dup {
			return types.InvalidArgument("crew %q: duplicate task %q", c.Name, t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.Agent != "" && len(c.Agents) > 0 {
			if _, ok := agents[t.Agent]; !ok {
				return types.InvalidArgument("crew %q: task %q references unknown agent %q", c.Name, t.Name, t.Agent)
			}
		}
	}
	return nil
}

// TaskIndex 返回任务的声明位置，未找到返回 -1
func (c *Crew) TaskIndex(name string) int {
	for i, t := range c.Tasks {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// TaskNames 返回按声明顺序排列的任务名
func (c *Crew) TaskNames() []string {
	names := make([]string, len(c.Tasks))
	for i, t := range c.Tasks {
		names[i] = t.Name
	}
	return names
}

// Agent 按名称查找角色
func (c *Crew) Agent(name string) (Agent, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return Agent{}, false
}

// =============================================================================
// 📄 YAML 定义加载
// =============================================================================

// ParseCrew 解析 YAML 流水线定义
func ParseCrew(data []byte) (*Crew, error) {
	var c Crew
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse crew definition: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCrew 从文件加载流水线定义；path 为空时返回内置的 engineering_team
func LoadCrew(path string) (*Crew, error) {
	if path == "" {
		return DefaultCrew()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crew definition: %w", err)
	}
	return ParseCrew(data)
}

// DefaultCrew 返回内置的工程团队：design → code → frontend → test
func DefaultCrew() (*Crew, error) {
	return ParseCrew(engineeringTeamYAML)
}

// =============================================================================
// 🧾 默认输入
// =============================================================================

const defaultRequirements = `

The system should allow users to create an account, log in, and manage their profile information.
the system should allow users to create an admin account and manage the system.
the system should allow to admin users to manage the products, categories, brands, and sizes and inventory.


Users must be able to register, sign in securely, and update their name, email, shipping address, and preferences.

The system should allow users to browse clothing items by category, size, color, brand, and price range.
Items should be filterable and searchable to improve discoverability based on user interest.

The system should allow users to view detailed information about each product, including images, sizes available, materials, care instructions, and price.
Each product page should clearly present all relevant data and available options.

The system should allow users to add items to a shopping cart and modify quantities before checkout.
Users must be able to review their cart, update item quantities, or remove products.

The system should allow users to proceed to checkout, enter payment details, and complete the purchase.
The checkout flow should include shipping method selection, address confirmation, and secure payment processing.

The system should allow users to view their order history and the status of current orders.
Orders should include tracking information, estimated delivery dates, and downloadable invoices.
Simulate every external API call or service call with a local repository.
`

// DefaultInputs 返回 run 命令使用的固定输入包
func DefaultInputs() *InputBundle {
	return MustInputBundle(map[string]any{
		"requirements": defaultRequirements,
		"module_name":  "ecommerce.py",
		"class_name":   "Sales",
	})
}
