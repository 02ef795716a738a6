package _const

// MessageType 协议消息类型，对应配置中的schemas表
type MessageType int

const (
	MessageTypeJobInfo         MessageType = 0x00000001 // 发往排产控制器的当前/下一作业信息
	MessageTypeJobChange       MessageType = 0x00000002 // 控制器上报换单
	MessageTypeBoxInfo         MessageType = 0x00000003 // 发往包装控制器的装箱信息
	MessageTypeRejects         MessageType = 0x00000004 // 控制器上报废品
	MessageTypeFinishedCartons MessageType = 0x00000005 // 控制器上报完成箱数
	MessageTypeBatchData       MessageType = 0x00000006 // 排产系统导出的批次CSV列
)

// MessageTypes 按声明顺序排列，用于配置加载
var MessageTypes = []MessageType{
	MessageTypeJobInfo,
	MessageTypeJobChange,
	MessageTypeBoxInfo,
	MessageTypeRejects,
	MessageTypeFinishedCartons,
	MessageTypeBatchData,
}

func (m MessageType) String() string {
	switch m {
	case MessageTypeJobInfo:
		return "jobInfo"
	case MessageTypeJobChange:
		return "jobChange"
	case MessageTypeBoxInfo:
		return "boxInfo"
	case MessageTypeRejects:
		return "rejects"
	case MessageTypeFinishedCartons:
		return "finishedCartons"
	case MessageTypeBatchData:
		return "batchData"
	default:
		return "unknown"
	}
}

// AuditName 审计文件的名称
func (m MessageType) AuditName() string {
	switch m {
	case MessageTypeJobChange:
		return "JobChange"
	case MessageTypeRejects:
		return "Rejects"
	case MessageTypeFinishedCartons:
		return "FinishedCartons"
	default:
		return ""
	}
}

// Command 控制器发来的命令字，取消息第一个空白分隔的token并转为大写
type Command string

const (
	CommandJobChange      Command = "JOBCHANGE"
	CommandRejects        Command = "REJECTS"
	CommandFinishedCart   Command = "FINISHEDCART"
	CommandRequestBoxInfo Command = "REQUESTBOXINFO"
)

// MessageType 命令对应的入站消息类型，没有对应表时返回false
func (c Command) MessageType() (MessageType, bool) {
	switch c {
	case CommandJobChange:
		return MessageTypeJobChange, true
	case CommandRejects:
		return MessageTypeRejects, true
	case CommandFinishedCart:
		return MessageTypeFinishedCartons, true
	default:
		return 0, false
	}
}
